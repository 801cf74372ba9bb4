package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/davicafu/f360jobs/internal/config"
	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"
	jobMongo "github.com/davicafu/f360jobs/internal/job/infra/outbound/db/mongodb"
	jobPostgres "github.com/davicafu/f360jobs/internal/job/infra/outbound/db/postgre"
	jobSQLite "github.com/davicafu/f360jobs/internal/job/infra/outbound/db/sqlite"
	sharedDomain "github.com/davicafu/f360jobs/internal/shared/domain"
	sharedMongo "github.com/davicafu/f360jobs/internal/shared/infra/db/mongodb"
	sharedPostgres "github.com/davicafu/f360jobs/internal/shared/infra/db/postgres"
	sharedSQLite "github.com/davicafu/f360jobs/internal/shared/infra/db/sqlite"

	_ "github.com/jackc/pgx/v5/stdlib" // Driver de PostgreSQL
)

// Stores agrupa los tres almacenes del flujo sobre un mismo backend.
type Stores struct {
	Jobs        jobDomain.JobRepository
	Outbox      sharedDomain.OutboxRepository
	Idempotency jobDomain.IdempotencyRepository
	close       func(ctx context.Context) error
}

func (s *Stores) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// OpenStores conecta con el backend configurado y prepara esquema e índices.
func OpenStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Stores, error) {
	switch cfg.StoreDriver {
	case config.StoreMongoDB:
		return openMongo(ctx, cfg, log)
	case config.StorePostgres:
		return openPostgres(ctx, cfg, log)
	case config.StoreSQLite:
		return openSQLite(ctx, cfg, log)
	}
	return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}

func openMongo(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Stores, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	disconnect := func(ctx context.Context) error { return client.Disconnect(ctx) }

	jobs, err := jobMongo.NewJobRepoMongoDB(ctx, client, cfg.MongoDB)
	if err != nil {
		_ = disconnect(ctx)
		return nil, err
	}
	outbox := sharedMongo.NewOutboxRepoMongoDB(client, cfg.MongoDB)
	keys := jobMongo.NewIdempotencyRepoMongoDB(client, cfg.MongoDB)

	for _, ensure := range []func(context.Context) error{jobs.EnsureIndexes, outbox.EnsureIndexes, keys.EnsureIndexes} {
		if err := ensure(ctx); err != nil {
			_ = disconnect(ctx)
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
	}

	log.Info("✅ MongoDB conectado", zap.String("db", cfg.MongoDB))
	return &Stores{Jobs: jobs, Outbox: outbox, Idempotency: keys, close: disconnect}, nil
}

func openPostgres(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Stores, error) {
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	jobs := jobPostgres.NewJobRepoPostgres(db)
	outbox := sharedPostgres.NewOutboxRepoPostgres(db)
	keys := jobPostgres.NewIdempotencyRepoPostgres(db)
	if err := initSchemas(ctx, jobs.InitSchema, outbox.InitSchema, keys.InitSchema); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("✅ PostgreSQL conectado")
	return &Stores{Jobs: jobs, Outbox: outbox, Idempotency: keys, close: closeDB(db)}, nil
}

func openSQLite(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Stores, error) {
	db, err := sharedSQLite.Open(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	jobs := jobSQLite.NewJobRepoSQLite(db)
	outbox := sharedSQLite.NewOutboxRepoSQLite(db)
	keys := jobSQLite.NewIdempotencyRepoSQLite(db)
	if err := initSchemas(ctx, jobs.InitSchema, outbox.InitSchema, keys.InitSchema); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("✅ SQLite abierto", zap.String("path", cfg.SQLitePath))
	return &Stores{Jobs: jobs, Outbox: outbox, Idempotency: keys, close: closeDB(db)}, nil
}

func initSchemas(ctx context.Context, inits ...func(context.Context) error) error {
	for _, init := range inits {
		if err := init(ctx); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func closeDB(db *sql.DB) func(context.Context) error {
	return func(context.Context) error { return db.Close() }
}
