package bootstrap

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/davicafu/f360jobs/internal/config"
	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"
	"github.com/davicafu/f360jobs/internal/job/infra/outbound/analytics/clickhouse"
	"github.com/davicafu/f360jobs/internal/job/infra/outbound/filesystem"
	"github.com/davicafu/f360jobs/internal/job/infra/outbound/viacep"
	sharedCache "github.com/davicafu/f360jobs/internal/shared/infra/platform/cache"
)

// NewCache intenta Redis y, si no responde, cae a la caché en memoria.
// El cierre devuelto libera la que se haya creado.
func NewCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (sharedCache.Cache, func()) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		log.Warn("⚠️ Redis no disponible, cache en memoria", zap.Error(err))
		mem := sharedCache.NewInMemoryCache(cfg.CacheTTL, 3*cfg.CacheTTL)
		return mem, mem.Stop
	}

	log.Info("✅ Redis conectado, cache habilitado", zap.String("addr", cfg.RedisAddr))
	return sharedCache.NewRedisCache(rdb, cfg.CacheTTL), func() { _ = rdb.Close() }
}

// NewAnalytics devuelve nil (analítica deshabilitada) si no hay CLICKHOUSE_ADDR o no responde.
func NewAnalytics(ctx context.Context, cfg *config.Config, log *zap.Logger) jobDomain.JobAnalyticsRepository {
	if cfg.ClickHouseAddr == "" {
		log.Info("Analítica deshabilitada (CLICKHOUSE_ADDR vacío)")
		return nil
	}

	repo, err := clickhouse.NewJobAnalyticsRepo(ctx, cfg.ClickHouseAddr, cfg.ClickHouseDB)
	if err != nil {
		log.Warn("⚠️ ClickHouse no disponible, analítica deshabilitada", zap.Error(err))
		return nil
	}
	if err := repo.InitSchema(ctx); err != nil {
		log.Warn("⚠️ No se pudo crear jobs_log, analítica deshabilitada", zap.Error(err))
		return nil
	}
	log.Info("✅ ClickHouse conectado", zap.String("addr", cfg.ClickHouseAddr))
	return repo
}

// NewArchive devuelve nil si ADDRESS_ARCHIVE_PATH está vacío.
func NewArchive(cfg *config.Config, log *zap.Logger) jobDomain.AddressArchive {
	if cfg.AddressArchivePath == "" {
		return nil
	}
	archive := filesystem.NewJSONAddressArchive(cfg.AddressArchivePath)
	if err := archive.EnsureDir(); err != nil {
		log.Warn("⚠️ No se pudo preparar el archivo de direcciones", zap.Error(err))
		return nil
	}
	return archive
}

func NewLookup(cfg *config.Config, log *zap.Logger) jobDomain.AddressLookup {
	return viacep.NewClient(cfg.ViaCepBaseURL, cfg.ViaCepTimeout, cfg.ViaCepRateLimit, log)
}
