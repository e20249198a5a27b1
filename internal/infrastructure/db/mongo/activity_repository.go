package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/framez/framez-core/internal/core/domain"
)

const activityCollection = "activity_events"

// ActivityRepository implements ports.ActivityRecorder using MongoDB.
type ActivityRepository struct {
	coll *mongo.Collection
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(db *mongo.Database) *ActivityRepository {
	return &ActivityRepository{coll: db.Collection(activityCollection)}
}

// EnsureIndexes creates the per-user timeline index. Safe to call on every start.
func (r *ActivityRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "at", Value: -1}},
		Options: options.Index().SetName("user_timeline"),
	})
	if err != nil {
		return fmt.Errorf("create activity index: %w", err)
	}
	return nil
}

// Record persists a user action to the activity audit collection.
func (r *ActivityRepository) Record(ctx context.Context, event domain.ActivityEvent) error {
	_, err := r.coll.InsertOne(ctx, activityDocument(event, time.Now()))
	return err
}

// Recent returns a user's latest activity, newest first.
func (r *ActivityRepository) Recent(ctx context.Context, userID string, limit int64) ([]domain.ActivityEvent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "at", Value: -1}}).SetLimit(limit)
	cur, err := r.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find activity: %w", err)
	}
	defer cur.Close(ctx)

	var docs []activityDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode activity: %w", err)
	}
	out := make([]domain.ActivityEvent, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.ActivityEvent{
			Kind:    domain.ActivityKind(d.Kind),
			UserID:  d.UserID,
			Subject: d.Subject,
			At:      d.At,
		})
	}
	return out, nil
}

type activityDoc struct {
	Kind       string    `bson:"kind"`
	UserID     string    `bson:"user_id"`
	Subject    string    `bson:"subject,omitempty"`
	At         time.Time `bson:"at"`
	RecordedAt time.Time `bson:"recorded_at"`
}

func activityDocument(event domain.ActivityEvent, now time.Time) activityDoc {
	at := event.At
	if at.IsZero() {
		at = now
	}
	return activityDoc{
		Kind:       string(event.Kind),
		UserID:     event.UserID,
		Subject:    event.Subject,
		At:         at.UTC(),
		RecordedAt: now.UTC(),
	}
}
