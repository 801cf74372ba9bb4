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
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const JobsCollection = "jobs"

// JobRepoMongoDB implementa la interfaz JobRepository para MongoDB.
type JobRepoMongoDB struct {
	jobsColl *mongo.Collection
}

// NewJobRepoMongoDB es el constructor del repositorio.
func NewJobRepoMongoDB(ctx context.Context, client *mongo.Client, dbName string) (*JobRepoMongoDB, error) {
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("could not ping mongoDB: %w", err)
	}
	return &JobRepoMongoDB{jobsColl: client.Database(dbName).Collection(JobsCollection)}, nil
}

// --- Structs de BSON para el mapeo ---
// Se definen localmente para no "contaminar" el dominio con tags de BSON.

type mongoJob struct {
	ID            string     `bson:"_id"`
	Cep           string     `bson:"cep"`
	Priority      string     `bson:"priority"`
	Status        string     `bson:"status"`
	ScheduledTime *time.Time `bson:"scheduledTime"`
	CreatedAt     time.Time  `bson:"createdAt"`
	CompletedAt   *time.Time `bson:"completedAt"`
}

// EnsureIndexes crea el índice que usa el barrido de reconciliación.
func (r *JobRepoMongoDB) EnsureIndexes(ctx context.Context) error {
	_, err := r.jobsColl.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}},
		Options: options.Index().SetName("ix_jobs_status_created_id"),
	})
	return err
}

func (r *JobRepoMongoDB) Create(ctx context.Context, j *jobDomain.Job) error {
	if _, err := r.jobsColl.InsertOne(ctx, toMongoJob(j)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return jobDomain.ErrJobAlreadyExists
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepoMongoDB) GetByID(ctx context.Context, id uuid.UUID) (*jobDomain.Job, error) {
	var mj mongoJob
	err := r.jobsColl.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&mj)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, jobDomain.ErrJobNotFound
		}
		return nil, err
	}
	return fromMongoJob(&mj)
}

// Update reemplaza el documento filtrando por id y estado esperado (compare-and-set).
func (r *JobRepoMongoDB) Update(ctx context.Context, j *jobDomain.Job, expected jobDomain.JobStatus) error {
	filter := bson.M{"_id": j.ID.String(), "status": string(expected)}
	res, err := r.jobsColl.ReplaceOne(ctx, filter, toMongoJob(j))
	if err != nil {
		return fmt.Errorf("replace job: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := r.jobsColl.CountDocuments(ctx, bson.M{"_id": j.ID.String()})
	if err != nil {
		return fmt.Errorf("count job: %w", err)
	}
	if n == 0 {
		return jobDomain.ErrJobNotFound
	}
	return jobDomain.ErrJobStatusConflict
}

func (r *JobRepoMongoDB) ListStalePending(ctx context.Context, after jobDomain.StaleCursor, createdBefore time.Time, limit int) ([]*jobDomain.Job, error) {
	afterAt := after.CreatedAt.UTC()
	filter := bson.M{
		"status":    string(jobDomain.JobPending),
		"createdAt": bson.M{"$lt": createdBefore.UTC()},
		"$or": bson.A{
			bson.M{"createdAt": bson.M{"$gt": afterAt}},
			bson.M{"createdAt": afterAt, "_id": bson.M{"$gt": after.ID.String()}},
		},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.jobsColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var jobs []*jobDomain.Job
	for cursor.Next(ctx) {
		var mj mongoJob
		if err := cursor.Decode(&mj); err != nil {
			return nil, err
		}
		j, err := fromMongoJob(&mj)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, cursor.Err()
}

// --- Helpers de Mapeo y Conversión ---

func toMongoJob(j *jobDomain.Job) *mongoJob {
	return &mongoJob{
		ID: j.ID.String(), Cep: j.Cep, Priority: string(j.Priority), Status: string(j.Status),
		ScheduledTime: utcPtr(j.ScheduledTime), CreatedAt: j.CreatedAt.UTC(), CompletedAt: utcPtr(j.CompletedAt),
	}
}

func fromMongoJob(mj *mongoJob) (*jobDomain.Job, error) {
	id, err := uuid.Parse(mj.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid job id %q: %w", mj.ID, err)
	}
	return &jobDomain.Job{
		ID: id, Cep: mj.Cep, Priority: jobDomain.JobPriority(mj.Priority), Status: jobDomain.JobStatus(mj.Status),
		ScheduledTime: utcPtr(mj.ScheduledTime), CreatedAt: mj.CreatedAt.UTC(), CompletedAt: utcPtr(mj.CompletedAt),
	}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
