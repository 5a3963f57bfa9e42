package models

import "time"

type Station struct {
	StationID         string `json:"station_id"`
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	AvgServiceMinutes int    `json:"avg_service_minutes,omitempty"`
}

type Counter struct {
	CounterID  string     `json:"counter_id"`
	StationID  string     `json:"station_id"`
	Number     int        `json:"number"`
	CashierUID *string    `json:"cashier_uid,omitempty"`
	ClaimedAt  *time.Time `json:"claimed_at,omitempty"`
}

// Occupied reports whether a cashier currently holds the counter.
func (c Counter) Occupied() bool {
	return c.CashierUID != nil && *c.CashierUID != ""
}

type QueueEntry struct {
	QueueID           string     `json:"queue_id"`
	StationID         string     `json:"station_id"`
	CounterID         *string    `json:"counter_id,omitempty"`
	QueueNumber       string     `json:"queue_number"`
	Purpose           string     `json:"purpose"`
	CustomerEmail     string     `json:"customer_email"`
	Status            string     `json:"status"`
	Position          int        `json:"position"`
	EstimatedWaitTime *int       `json:"estimated_wait_time,omitempty"`
	QRID              *string    `json:"qr_id,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	Reason            string     `json:"reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	ServedAt          *time.Time `json:"served_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

const (
	StatusWaiting   = "waiting"
	StatusServing   = "serving"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

// Terminal reports whether a queue entry can no longer change status.
func Terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	default:
		return false
	}
}

type User struct {
	UID         string    `json:"uid"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	StationID   *string   `json:"station_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	RolePending    = "pending"
	RoleCashier    = "cashier"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superAdmin"
)

// Approved reports whether the user may operate counters.
func (u User) Approved() bool {
	switch u.Role {
	case RoleCashier, RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

type StationSummary struct {
	StationID        string  `json:"station_id"`
	Name             string  `json:"name"`
	CountersTotal    int     `json:"counters_total"`
	CountersOccupied int     `json:"counters_occupied"`
	WaitingCount     int     `json:"waiting_count"`
	AvgEstimatedWait float64 `json:"avg_estimated_wait"`
}
