package worker

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"

	"qms/cashier-service/internal/store"
)

// Consumer is the outbox offset key used by the notification worker.
const Consumer = "notifier"

// OutboxSource is the slice of the queue store the worker reads from.
type OutboxSource interface {
	ListOutboxEvents(ctx context.Context, offset store.OutboxOffset, limit int) ([]store.OutboxEvent, error)
	GetOffset(ctx context.Context, consumer string) (store.OutboxOffset, error)
	UpdateOffset(ctx context.Context, consumer string, offset store.OutboxOffset) error
}

type Worker struct {
	store     OutboxSource
	email     Provider
	batchSize int
}

type payloadData map[string]interface{}

type Config struct {
	BatchSize     int
	EmailProvider string
}

func New(st OutboxSource, cfg Config) *Worker {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	return &Worker{
		store:     st,
		email:     newProvider(cfg.EmailProvider, "email"),
		batchSize: batch,
	}
}

// Run drains one batch of outbox events and advances the notifier offset.
// It is driven by a ticker in main; a failed send is logged and skipped so
// one bad recipient cannot wedge the queue.
func (w *Worker) Run(ctx context.Context) error {
	offset, err := w.store.GetOffset(ctx, Consumer)
	if err != nil {
		return err
	}

	events, err := w.store.ListOutboxEvents(ctx, offset, w.batchSize)
	if err != nil {
		return err
	}

	for _, event := range events {
		if err := w.processEvent(ctx, event); err != nil {
			log.Printf("notif process error: %v", err)
		}
		offset.LastEventTime = event.CreatedAt
		offset.LastEventID = event.EventID
	}

	if len(events) > 0 {
		if err := w.store.UpdateOffset(ctx, Consumer, offset); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) processEvent(ctx context.Context, event store.OutboxEvent) error {
	payload := payloadData{}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return err
	}

	template := templateForEvent(event.Type)
	if template == "" {
		return nil
	}
	recipient := str(payload, "customer_email")
	if recipient == "" {
		return nil
	}

	return w.email.Send(ctx, renderTemplate(template, payload), recipient)
}

func templateForEvent(eventType string) string {
	switch eventType {
	case "queue.created":
		return "You are in line as {queue_number}, position {position}."
	case "queue.serving":
		return "Now serving {queue_number}. Please proceed to the counter."
	case "queue.no_show":
		return "Queue number {queue_number} was marked as a no-show."
	default:
		return ""
	}
}

func renderTemplate(template string, payload payloadData) string {
	result := template
	result = strings.ReplaceAll(result, "{queue_number}", str(payload, "queue_number"))
	result = strings.ReplaceAll(result, "{position}", str(payload, "position"))
	result = strings.ReplaceAll(result, "{station_id}", str(payload, "station_id"))
	return result
}

func str(payload payloadData, key string) string {
	value, ok := payload[key]
	if !ok {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
