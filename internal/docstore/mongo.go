package docstore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/obslog"
)

// Mongo stores one document per session in "sessions" and one counter of
// waiting sessions per matchmaking bucket in "buckets". Subscribe needs a
// replica set because it relies on change streams.
type Mongo struct {
	sessions *mongo.Collection
	buckets  *mongo.Collection
}

func NewMongo(client *mongo.Client, database string) *Mongo {
	db := client.Database(database)
	return &Mongo{
		sessions: db.Collection("sessions"),
		buckets:  db.Collection("buckets"),
	}
}


func (m *Mongo) Get(ctx context.Context, id string) (*domain.Session, error) {
	var s domain.Session
	err := m.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&s)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *Mongo) Update(ctx context.Context, next *domain.Session, expected int64) (*domain.Session, error) {
	if err := checkPayload(next); err != nil {
		return nil, err
	}
	cur, err := m.Get(ctx, next.ID)
	if err != nil {
		return nil, err
	}
	if cur.Revision != expected {
		return nil, fmt.Errorf("%w: %s at %d, expected %d", ErrConflict, next.ID, cur.Revision, expected)
	}
	// the revision filter below pins the write to the version checked here
	if err := checkWrite(cur, next); err != nil {
		return nil, err
	}
	var prev domain.Session
	stored := next.Clone()
	stored.Revision = expected + 1
	err = m.sessions.FindOneAndReplace(ctx,
		bson.M{"_id": next.ID, "revision": expected},
		stored,
		options.FindOneAndReplace().SetReturnDocument(options.Before),
	).Decode(&prev)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("%w: %s expected %d", ErrConflict, next.ID, expected)
	}
	if err != nil {
		return nil, err
	}
	if leavesWaiting(&prev, stored) {
		if err := m.adjustWaiting(ctx, prev.BucketKey(), -1); err != nil {
			// the session write is committed; a stale count only makes
			// exclusive creates in this bucket fall back to plain creates
			obslog.L().Warn("bucket_waiting_count_failed", zap.String("game_id", prev.ID), zap.Error(err))
		}
	}
	return stored, nil
}

func (m *Mongo) adjustWaiting(ctx context.Context, bucket string, delta int) error {
	_, err := m.buckets.UpdateOne(ctx,
		bson.M{"_id": bucket},
		bson.M{"$inc": bson.M{"waiting": delta}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (m *Mongo) FindWaiting(ctx context.Context, q Query) ([]*domain.Session, error) {
	cur, err := m.sessions.Find(ctx, bson.M{
		"status":                         domain.StatusWaiting,
		"rated":                          q.Rated,
		"tier":                           q.Tier,
		"time_control.initial_seconds":   q.TimeControl.InitialSeconds,
		"time_control.increment_seconds": q.TimeControl.IncrementSeconds,
	}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*domain.Session
	for cur.Next(ctx) {
		var s domain.Session
		if err := cur.Decode(&s); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateWaiting counts the session into its bucket before inserting it. An
// exclusive create claims the count only while it is zero; a lost claim
// surfaces as a miss or as the duplicate _id of the upsert.
func (m *Mongo) CreateWaiting(ctx context.Context, s *domain.Session, exclusive bool) (*domain.Session, error) {
	if err := checkCreate(s); err != nil {
		return nil, err
	}
	bucket := s.BucketKey()
	if exclusive {
		err := m.buckets.FindOneAndUpdate(ctx,
			bson.M{"_id": bucket, "waiting": bson.M{"$lte": 0}},
			bson.M{"$set": bson.M{"waiting": 1}},
			options.FindOneAndUpdate().SetUpsert(true),
		).Err()
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrBucketChanged
		}
		if err != nil && err != mongo.ErrNoDocuments {
			return nil, err
		}
	} else if err := m.adjustWaiting(ctx, bucket, 1); err != nil {
		return nil, err
	}
	stored := s.Clone()
	stored.Revision = 1
	if _, err := m.sessions.InsertOne(ctx, stored); err != nil {
		if uerr := m.adjustWaiting(ctx, bucket, -1); uerr != nil {
			obslog.L().Warn("bucket_waiting_count_failed", zap.String("game_id", s.ID), zap.Error(uerr))
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrExists
		}
		return nil, err
	}
	return stored, nil
}

func (m *Mongo) Subscribe(ctx context.Context, id string) (<-chan *domain.Session, error) {
	pipeline := mongo.Pipeline{bson.D{{Key: "$match", Value: bson.M{"documentKey._id": id}}}}
	stream, err := m.sessions.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", id, err)
	}
	out := make(chan *domain.Session, subscriberBuffer)
	go func() {
		defer close(out)
		defer stream.Close(context.Background())
		for stream.Next(ctx) {
			var ev struct {
				FullDocument *domain.Session `bson:"fullDocument"`
			}
			if err := stream.Decode(&ev); err != nil || ev.FullDocument == nil {
				obslog.L().Warn("session_change_decode_failed", zap.String("game_id", id), zap.Error(err))
				continue
			}
			select {
			case out <- ev.FullDocument:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
