package store

import "errors"

var (
	ErrStationNotFound        = errors.New("station not found")
	ErrCounterNotFound        = errors.New("counter not found")
	ErrQueueNotFound          = errors.New("queue entry not found")
	ErrAlreadyOccupied        = errors.New("counter already occupied")
	ErrCashierAlreadyAssigned = errors.New("cashier already occupies a counter")
	ErrNotOwner               = errors.New("counter held by another cashier")
	ErrServiceInProgress      = errors.New("service still in progress at counter")
	ErrCounterNotClaimed      = errors.New("counter has no cashier")
	ErrCounterBusy            = errors.New("counter already has a serving entry")
	ErrNothingServing         = errors.New("no serving entry at counter")
	ErrEmptyQueue             = errors.New("no waiting entries")
	ErrQueueHeadChanged       = errors.New("entry is no longer the queue head")
	ErrInvalidState           = errors.New("invalid queue entry state")
	ErrSessionNotFound        = errors.New("session not found")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrAccessDenied           = errors.New("access denied")
)
