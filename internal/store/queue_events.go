package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"qms/cashier-service/internal/models"
)

type QueueEvent struct {
	QueueID   string          `json:"queue_id"`
	QueueSeq  int             `json:"queue_seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

type eventPayload struct {
	QueueID       string     `json:"queue_id"`
	QueueNumber   string     `json:"queue_number"`
	StationID     string     `json:"station_id"`
	Status        string     `json:"status"`
	Position      int        `json:"position"`
	CounterID     *string    `json:"counter_id"`
	CustomerEmail string     `json:"customer_email"`
	Purpose       string     `json:"purpose"`
	CreatedAt     *time.Time `json:"created_at"`
	ServedAt      *time.Time `json:"served_at"`
	CompletedAt   *time.Time `json:"completed_at"`
}

func ComputeQueueEventHash(prevHash, queueID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, queueID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// VerifyQueueEvents walks the chain and reports the first broken link, if any.
func VerifyQueueEvents(events []QueueEvent) (int, bool) {
	prev := ""
	for i, event := range events {
		want := ComputeQueueEventHash(prev, event.QueueID, event.Type, event.Payload, event.CreatedAt, event.QueueSeq)
		if event.Hash != want || event.PrevHash != prev {
			return i, false
		}
		prev = event.Hash
	}
	return -1, true
}

// RehydrateEntry folds an event chain back into the entry's latest state.
func RehydrateEntry(events []QueueEvent) (models.QueueEntry, error) {
	var entry models.QueueEntry
	for _, event := range events {
		if len(event.Payload) == 0 {
			continue
		}
		var payload eventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return models.QueueEntry{}, err
		}
		if payload.QueueID != "" {
			entry.QueueID = payload.QueueID
		}
		if payload.QueueNumber != "" {
			entry.QueueNumber = payload.QueueNumber
		}
		if payload.StationID != "" {
			entry.StationID = payload.StationID
		}
		if payload.Status != "" {
			entry.Status = payload.Status
		}
		if payload.Position > 0 {
			entry.Position = payload.Position
		}
		if payload.CounterID != nil {
			entry.CounterID = payload.CounterID
		}
		if payload.CustomerEmail != "" {
			entry.CustomerEmail = payload.CustomerEmail
		}
		if payload.Purpose != "" {
			entry.Purpose = payload.Purpose
		}
		if payload.CreatedAt != nil {
			entry.CreatedAt = *payload.CreatedAt
		}
		if payload.ServedAt != nil {
			entry.ServedAt = payload.ServedAt
		}
		if payload.CompletedAt != nil {
			entry.CompletedAt = payload.CompletedAt
		}
	}
	return entry, nil
}
