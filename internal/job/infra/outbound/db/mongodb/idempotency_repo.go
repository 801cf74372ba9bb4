package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	jobDomain "github.com/davicafu/f360jobs/internal/job/domain"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const IdempotencyCollection = "idempotency_key"

// IdempotencyRepoMongoDB implementa IdempotencyRepository. El índice TTL de Mongo
// borra las claves caducadas; mientras tanto se filtran por createdAt.
type IdempotencyRepoMongoDB struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewIdempotencyRepoMongoDB(client *mongo.Client, dbName string) *IdempotencyRepoMongoDB {
	return &IdempotencyRepoMongoDB{
		coll: client.Database(dbName).Collection(IdempotencyCollection),
		now:  time.Now,
	}
}

type mongoIdempotencyKey struct {
	ID        string    `bson:"_id"`
	Key       string    `bson:"key"`
	JobID     string    `bson:"jobId"`
	CreatedAt time.Time `bson:"createdAt"`
}

// EnsureIndexes crea el índice único por clave y el índice TTL de 24h.
func (r *IdempotencyRepoMongoDB) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("ux_idempotency_key"),
		},
		{
			Keys: bson.D{{Key: "createdAt", Value: 1}},
			Options: options.Index().
				SetExpireAfterSeconds(int32(jobDomain.IdempotencyKeyTTL / time.Second)).
				SetName("ttl_idempotency_created"),
		},
	})
	return err
}

func (r *IdempotencyRepoMongoDB) GetByKey(ctx context.Context, key string) (*jobDomain.IdempotencyKey, error) {
	var mk mongoIdempotencyKey
	err := r.coll.FindOne(ctx, bson.M{"key": key}).Decode(&mk)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	k, err := fromMongoKey(&mk)
	if err != nil {
		return nil, err
	}
	// el monitor TTL corre cada minuto, así que puede quedar alguna caducada
	if k.IsExpired(r.now()) {
		return nil, nil
	}
	return k, nil
}

func (r *IdempotencyRepoMongoDB) Create(ctx context.Context, k *jobDomain.IdempotencyKey) error {
	err := r.insert(ctx, k)
	if !errors.Is(err, jobDomain.ErrDuplicateIdempotencyKey) {
		return err
	}

	// El duplicado puede ser una clave caducada que el TTL aún no ha borrado.
	cutoff := r.now().Add(-jobDomain.IdempotencyKeyTTL).UTC()
	res, delErr := r.coll.DeleteOne(ctx, bson.M{"key": k.Key, "createdAt": bson.M{"$lte": cutoff}})
	if delErr != nil {
		return fmt.Errorf("delete expired idempotency key: %w", delErr)
	}
	if res.DeletedCount == 0 {
		return err
	}
	return r.insert(ctx, k)
}

func (r *IdempotencyRepoMongoDB) insert(ctx context.Context, k *jobDomain.IdempotencyKey) error {
	mk := &mongoIdempotencyKey{ID: k.ID.String(), Key: k.Key, JobID: k.JobID.String(), CreatedAt: k.CreatedAt.UTC()}
	if _, err := r.coll.InsertOne(ctx, mk); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return jobDomain.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("insert idempotency key: %w", err)
	}
	return nil
}

func (r *IdempotencyRepoMongoDB) DeleteByKey(ctx context.Context, key string) error {
	_, err := r.coll.DeleteOne(ctx, bson.M{"key": key})
	return err
}

func fromMongoKey(mk *mongoIdempotencyKey) (*jobDomain.IdempotencyKey, error) {
	id, err := uuid.Parse(mk.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid idempotency id %q: %w", mk.ID, err)
	}
	jobID, err := uuid.Parse(mk.JobID)
	if err != nil {
		return nil, fmt.Errorf("invalid job id %q: %w", mk.JobID, err)
	}
	return &jobDomain.IdempotencyKey{ID: id, Key: mk.Key, JobID: jobID, CreatedAt: mk.CreatedAt.UTC()}, nil
}
