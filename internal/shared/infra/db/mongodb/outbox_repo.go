package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	sharedDomain "github.com/davicafu/f360jobs/internal/shared/domain"
)

const OutboxCollection = "outbox_messages"

// OutboxRepoMongoDB implementa la interfaz sharedDomain.OutboxRepository.
type OutboxRepoMongoDB struct {
	outboxColl *mongo.Collection
}

func NewOutboxRepoMongoDB(client *mongo.Client, dbName string) *OutboxRepoMongoDB {
	return &OutboxRepoMongoDB{outboxColl: client.Database(dbName).Collection(OutboxCollection)}
}

// mongoOutboxMessage mapea el documento; los ids se guardan como string.
type mongoOutboxMessage struct {
	ID            string     `bson:"_id"`
	JobID         string     `bson:"jobId"`
	Payload       string     `bson:"payload"`
	Priority      string     `bson:"priority"`
	DeliveryRank  int        `bson:"deliveryRank"`
	Status        string     `bson:"status"`
	ScheduledTime time.Time  `bson:"scheduledTime"`
	CreatedAt     time.Time  `bson:"createdAt"`
	SentAt        *time.Time `bson:"sentAt"`
	LockedUntil   *time.Time `bson:"lockedUntil"`
	RetryCount    int        `bson:"retryCount"`
	ErrorMessage  *string    `bson:"errorMessage"`
}

// EnsureIndexes crea el índice único por job y el índice de claim.
func (r *OutboxRepoMongoDB) EnsureIndexes(ctx context.Context) error {
	_, err := r.outboxColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "jobId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("ux_outbox_job"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "scheduledTime", Value: 1}, {Key: "lockedUntil", Value: 1}},
			Options: options.Index().SetName("ix_outbox_claim"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "deliveryRank", Value: 1}, {Key: "scheduledTime", Value: 1}},
			Options: options.Index().SetName("ix_outbox_claim_order"),
		},
	})
	return err
}

func (r *OutboxRepoMongoDB) Create(ctx context.Context, msg *sharedDomain.OutboxMessage) error {
	if _, err := r.outboxColl.InsertOne(ctx, toMongoOutbox(msg)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return sharedDomain.ErrOutboxAlreadyExists
		}
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

// ClaimNext es un único FindOneAndUpdate: el servidor serializa las escrituras sobre el documento,
// así que dos relays nunca obtienen el mismo mensaje.
func (r *OutboxRepoMongoDB) ClaimNext(ctx context.Context, now time.Time, lease time.Duration) (*sharedDomain.OutboxMessage, error) {
	filter := bson.M{
		"status":        string(sharedDomain.OutboxPending),
		"scheduledTime": bson.M{"$lte": now},
		"$or": bson.A{
			bson.M{"lockedUntil": nil},
			bson.M{"lockedUntil": bson.M{"$lt": now}},
		},
	}
	update := bson.M{"$set": bson.M{"lockedUntil": now.Add(lease)}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "deliveryRank", Value: 1}, {Key: "scheduledTime", Value: 1}}).
		SetReturnDocument(options.After)

	var mo mongoOutboxMessage
	err := r.outboxColl.FindOneAndUpdate(ctx, filter, update, opts).Decode(&mo)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim outbox message: %w", err)
	}
	return fromMongoOutbox(&mo)
}

func (r *OutboxRepoMongoDB) Update(ctx context.Context, msg *sharedDomain.OutboxMessage, claimedUntil time.Time) error {
	mo := toMongoOutbox(msg)
	res, err := r.outboxColl.ReplaceOne(ctx, bson.M{"_id": mo.ID, "lockedUntil": claimedUntil}, mo)
	if err != nil {
		return fmt.Errorf("update outbox message: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := r.outboxColl.CountDocuments(ctx, bson.M{"_id": mo.ID})
	if err != nil {
		return fmt.Errorf("update outbox message: %w", err)
	}
	if n == 0 {
		return sharedDomain.ErrOutboxNotFound
	}
	return sharedDomain.ErrOutboxLeaseLost
}

func toMongoOutbox(m *sharedDomain.OutboxMessage) mongoOutboxMessage {
	return mongoOutboxMessage{
		ID:            m.ID.String(),
		JobID:         m.JobID.String(),
		Payload:       m.Payload,
		Priority:      m.Priority,
		DeliveryRank:  m.DeliveryRank,
		Status:        string(m.Status),
		ScheduledTime: m.ScheduledTime.UTC(),
		CreatedAt:     m.CreatedAt.UTC(),
		SentAt:        m.SentAt,
		LockedUntil:   m.LockedUntil,
		RetryCount:    m.RetryCount,
		ErrorMessage:  m.ErrorMessage,
	}
}

func fromMongoOutbox(mo *mongoOutboxMessage) (*sharedDomain.OutboxMessage, error) {
	id, err := uuid.Parse(mo.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid outbox id %q: %w", mo.ID, err)
	}
	jobID, err := uuid.Parse(mo.JobID)
	if err != nil {
		return nil, fmt.Errorf("invalid job id in outbox %q: %w", mo.ID, err)
	}
	return &sharedDomain.OutboxMessage{
		ID:            id,
		JobID:         jobID,
		Payload:       mo.Payload,
		Priority:      mo.Priority,
		DeliveryRank:  mo.DeliveryRank,
		Status:        sharedDomain.OutboxStatus(mo.Status),
		ScheduledTime: mo.ScheduledTime.UTC(),
		CreatedAt:     mo.CreatedAt.UTC(),
		SentAt:        utcPtr(mo.SentAt),
		LockedUntil:   utcPtr(mo.LockedUntil),
		RetryCount:    mo.RetryCount,
		ErrorMessage:  mo.ErrorMessage,
	}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxRepository = (*OutboxRepoMongoDB)(nil)
