package store

import (
	"context"
	"encoding/json"
	"time"

	"qms/cashier-service/internal/models"
)

type CreateEntryInput struct {
	StationID     string
	Purpose       string
	CustomerEmail string
	QRID          string
	CreatedAt     time.Time
}

type StartServiceInput struct {
	QueueID    string
	CounterID  string
	CashierUID string
	ServedAt   time.Time
}

type ResolveServiceInput struct {
	CounterID  string
	QueueID    string
	CashierUID string
	Notes      string
	Reason     string
	OccurredAt time.Time
}

type Session struct {
	SessionID string
	UID       string
	ExpiresAt time.Time
}

type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	StationID string          `json:"station_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

type OutboxOffset struct {
	LastEventTime time.Time
	LastEventID   string
}

type QueueStore interface {
	// Claim coordinator.
	ClaimCounter(ctx context.Context, counterID, cashierUID string) (models.Counter, error)
	ReleaseCounter(ctx context.Context, counterID, cashierUID string) error
	StartService(ctx context.Context, input StartServiceInput) (models.QueueEntry, error)
	CompleteService(ctx context.Context, input ResolveServiceInput) (models.QueueEntry, error)
	MarkNoShow(ctx context.Context, input ResolveServiceInput) (models.QueueEntry, error)
	CancelEntry(ctx context.Context, queueID string) (models.QueueEntry, error)
	CreateEntry(ctx context.Context, input CreateEntryInput) (models.QueueEntry, error)

	// Read projections.
	CurrentServing(ctx context.Context, counterID string) (models.QueueEntry, bool, error)
	AssignedCounter(ctx context.Context, cashierUID string) (models.Counter, bool, error)
	WaitingList(ctx context.Context, stationID string) ([]models.QueueEntry, error)
	GetEntry(ctx context.Context, queueID string) (models.QueueEntry, error)
	ListCounters(ctx context.Context, stationID string) ([]models.Counter, error)
	ListStations(ctx context.Context) ([]models.Station, error)
	StationSummaries(ctx context.Context) ([]models.StationSummary, error)
	ListQueueEvents(ctx context.Context, queueID string) ([]QueueEvent, error)

	// Outbox feed, consumed by the realtime poller and the notification worker.
	ListOutboxEvents(ctx context.Context, offset OutboxOffset, limit int) ([]OutboxEvent, error)
	GetOffset(ctx context.Context, consumer string) (OutboxOffset, error)
	UpdateOffset(ctx context.Context, consumer string, offset OutboxOffset) error
	CleanupOutbox(ctx context.Context, before time.Time) error

	// Identity.
	Login(ctx context.Context, email, password string) (Session, models.User, error)
	GetSession(ctx context.Context, sessionID string) (Session, models.User, error)
}
