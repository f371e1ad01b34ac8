package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"calendar-engine/core/config"
	"calendar-engine/core/constants"
	"calendar-engine/core/logger"

	"github.com/hibiken/asynq"
)

// Worker consumes booking events off the queue and forwards them to the
// configured automation webhook.
type Worker struct {
	srv *asynq.Server
}

// StartWorker begins processing booking events in the background. Returns
// nil when the worker could not start; the API keeps serving without it.
func StartWorker(redisCfg config.RedisConfig, calCfg config.CalendarConfig) *Worker {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     fmt.Sprintf("%s:%d", redisCfg.Host, redisCfg.Port),
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
		},
		asynq.Config{
			Concurrency: calCfg.AutomationConcurrency,
			Queues:      map[string]int{queueName: 1},
		},
	)

	h := &bookingEventHandler{
		webhookURL: calCfg.AutomationWebhookURL,
		httpClient: &http.Client{Timeout: constants.ProviderHTTPTimeout},
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeBookingCreated, h.Handle)
	mux.HandleFunc(TypeBookingCancelled, h.Handle)
	mux.HandleFunc(TypeBookingRescheduled, h.Handle)
	mux.HandleFunc(TypeBookingCompleted, h.Handle)
	mux.HandleFunc(TypeBookingNoShow, h.Handle)

	if err := srv.Start(mux); err != nil {
		logger.Error("Events:StartWorker:Error:", err)
		return nil
	}
	return &Worker{srv: srv}
}

func (w *Worker) Shutdown() {
	w.srv.Shutdown()
}

type bookingEventHandler struct {
	webhookURL string
	httpClient *http.Client
}

func (h *bookingEventHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var event BookingEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		logger.Error("Events:Handle:BadPayload", "type", t.Type(), "error", err)
		// Malformed payloads will never succeed, drop them.
		return nil
	}

	logger.Info("Events:Handle",
		"type", t.Type(),
		"booking_id", event.BookingID,
		"organization_id", event.OrganizationID,
	)

	if h.webhookURL == "" {
		return nil
	}
	return h.deliverWebhook(ctx, t.Type(), event)
}

func (h *bookingEventHandler) deliverWebhook(ctx context.Context, eventType string, event BookingEvent) error {
	body, err := json.Marshal(map[string]any{
		"type": eventType,
		"data": event,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		logger.Error("Events:DeliverWebhook:Error:", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logger.Error("Events:DeliverWebhook:BadStatus", "status", resp.StatusCode)
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
