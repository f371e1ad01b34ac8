package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"calendar-engine/core/config"
	"calendar-engine/core/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Task types emitted on booking lifecycle changes. Downstream automations
// (SMS confirmations, follow-up campaigns) consume these.
const (
	TypeBookingCreated     = "calendar:booking_created"
	TypeBookingCancelled   = "calendar:booking_cancelled"
	TypeBookingRescheduled = "calendar:booking_rescheduled"
	TypeBookingCompleted   = "calendar:booking_completed"
	TypeBookingNoShow      = "calendar:booking_no_show"
)

const queueName = "calendar"

type BookingEvent struct {
	BookingID      uuid.UUID `json:"booking_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Provider       string    `json:"provider"`
	CallerName     string    `json:"caller_name"`
	CallerPhone    string    `json:"caller_phone"`
	Purpose        string    `json:"purpose,omitempty"`
	StartTime      time.Time `json:"start_time"`
	Reason         string    `json:"reason,omitempty"`
}

type Publisher interface {
	PublishBookingEvent(ctx context.Context, eventType string, event BookingEvent) error
}

type asynqPublisher struct {
	client *asynq.Client
}

func NewPublisher(cfg config.RedisConfig) Publisher {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &asynqPublisher{client: client}
}

func (p *asynqPublisher) PublishBookingEvent(ctx context.Context, eventType string, event BookingEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	task := asynq.NewTask(eventType, payload)
	info, err := p.client.EnqueueContext(ctx, task,
		asynq.Queue(queueName),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	)
	if err != nil {
		return err
	}

	logger.Info("Events:PublishBookingEvent:Enqueued",
		"type", eventType,
		"task_id", info.ID,
		"booking_id", event.BookingID,
	)
	return nil
}

// NopPublisher drops every event. Used when the queue is not configured
// and in tests.
type NopPublisher struct{}

func (NopPublisher) PublishBookingEvent(ctx context.Context, eventType string, event BookingEvent) error {
	return nil
}
