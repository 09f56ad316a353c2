package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// GradeEvent notifies downstream consumers (live gradebook views, exporters)
// that a stored score changed. Consumers re-read the gradesheet; the event
// carries identifiers only, never computed totals.
type GradeEvent struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	CourseID      string                 `json:"course_id"`
	EnrollmentIDs []uint                 `json:"enrollment_ids,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	OccurredAt    time.Time              `json:"occurred_at"`
}

// Event types emitted by the grading services.
const (
	EventManualScoreSet  = "score.manual_set"
	EventTaskGraded      = "task.graded"
	EventTaskBulkGraded  = "task.bulk_graded"
	EventProjectChanged  = "project.changed"
	EventProjectDeleted  = "project.deleted"
	EventSettingsChanged = "criteria.settings_changed"
)

// GradeEventPublisher fans grading events out to the configured brokers.
type GradeEventPublisher interface {
	Publish(ctx context.Context, event GradeEvent) error
}

type gradeEventPublisher struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	now          func() time.Time
}

// NewGradeEventPublisher constructs a publisher targeting the given redis
// channel and NATS subject. Either client may be nil; publishing then skips
// that broker.
func NewGradeEventPublisher(redisClient *redis.Client, redisChannel string, natsConn *nats.Conn, natsSubject string, logger zerolog.Logger) GradeEventPublisher {
	return &gradeEventPublisher{
		redis:        redisClient,
		redisChannel: redisChannel,
		nats:         natsConn,
		natsSubject:  natsSubject,
		logger:       logger.With().Str("component", "grade_events").Logger(),
		now:          time.Now,
	}
}

func (p *gradeEventPublisher) Publish(ctx context.Context, event GradeEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if p.redis != nil && p.redisChannel != "" {
		if err := p.redis.Publish(ctx, p.redisChannel, payload).Err(); err != nil {
			return err
		}
	}

	if p.nats != nil && p.natsSubject != "" {
		if err := p.nats.Publish(p.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}
