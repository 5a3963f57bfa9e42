package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"qms/cashier-service/internal/models"
	"qms/cashier-service/internal/store"
)

type fakeStore struct {
	claimFn          func(ctx context.Context, counterID, cashierUID string) (models.Counter, error)
	releaseFn        func(ctx context.Context, counterID, cashierUID string) error
	startFn          func(ctx context.Context, input store.StartServiceInput) (models.QueueEntry, error)
	completeFn       func(ctx context.Context, input store.ResolveServiceInput) (models.QueueEntry, error)
	noShowFn         func(ctx context.Context, input store.ResolveServiceInput) (models.QueueEntry, error)
	cancelFn         func(ctx context.Context, queueID string) (models.QueueEntry, error)
	createFn         func(ctx context.Context, input store.CreateEntryInput) (models.QueueEntry, error)
	currentServingFn func(ctx context.Context, counterID string) (models.QueueEntry, bool, error)
	assignedFn       func(ctx context.Context, cashierUID string) (models.Counter, bool, error)
	waitingFn        func(ctx context.Context, stationID string) ([]models.QueueEntry, error)
	getEntryFn       func(ctx context.Context, queueID string) (models.QueueEntry, error)
	listCountersFn   func(ctx context.Context, stationID string) ([]models.Counter, error)
	listStationsFn   func(ctx context.Context) ([]models.Station, error)
	summariesFn      func(ctx context.Context) ([]models.StationSummary, error)
	queueEventsFn    func(ctx context.Context, queueID string) ([]store.QueueEvent, error)
	outboxFn         func(ctx context.Context, offset store.OutboxOffset, limit int) ([]store.OutboxEvent, error)
	getOffsetFn      func(ctx context.Context, consumer string) (store.OutboxOffset, error)
	updateOffsetFn   func(ctx context.Context, consumer string, offset store.OutboxOffset) error
	cleanupFn        func(ctx context.Context, before time.Time) error
	loginFn          func(ctx context.Context, email, password string) (store.Session, models.User, error)
	getSessionFn     func(ctx context.Context, sessionID string) (store.Session, models.User, error)
}

func (f fakeStore) ClaimCounter(ctx context.Context, counterID, cashierUID string) (models.Counter, error) {
	if f.claimFn == nil {
		return models.Counter{}, nil
	}
	return f.claimFn(ctx, counterID, cashierUID)
}

func (f fakeStore) ReleaseCounter(ctx context.Context, counterID, cashierUID string) error {
	if f.releaseFn == nil {
		return nil
	}
	return f.releaseFn(ctx, counterID, cashierUID)
}

func (f fakeStore) StartService(ctx context.Context, input store.StartServiceInput) (models.QueueEntry, error) {
	if f.startFn == nil {
		return models.QueueEntry{}, nil
	}
	return f.startFn(ctx, input)
}

func (f fakeStore) CompleteService(ctx context.Context, input store.ResolveServiceInput) (models.QueueEntry, error) {
	if f.completeFn == nil {
		return models.QueueEntry{}, nil
	}
	return f.completeFn(ctx, input)
}

func (f fakeStore) MarkNoShow(ctx context.Context, input store.ResolveServiceInput) (models.QueueEntry, error) {
	if f.noShowFn == nil {
		return models.QueueEntry{}, nil
	}
	return f.noShowFn(ctx, input)
}

func (f fakeStore) CancelEntry(ctx context.Context, queueID string) (models.QueueEntry, error) {
	if f.cancelFn == nil {
		return models.QueueEntry{}, nil
	}
	return f.cancelFn(ctx, queueID)
}

func (f fakeStore) CreateEntry(ctx context.Context, input store.CreateEntryInput) (models.QueueEntry, error) {
	if f.createFn == nil {
		return models.QueueEntry{}, nil
	}
	return f.createFn(ctx, input)
}

func (f fakeStore) CurrentServing(ctx context.Context, counterID string) (models.QueueEntry, bool, error) {
	if f.currentServingFn == nil {
		return models.QueueEntry{}, false, nil
	}
	return f.currentServingFn(ctx, counterID)
}

func (f fakeStore) AssignedCounter(ctx context.Context, cashierUID string) (models.Counter, bool, error) {
	if f.assignedFn == nil {
		return models.Counter{}, false, nil
	}
	return f.assignedFn(ctx, cashierUID)
}

func (f fakeStore) WaitingList(ctx context.Context, stationID string) ([]models.QueueEntry, error) {
	if f.waitingFn == nil {
		return nil, nil
	}
	return f.waitingFn(ctx, stationID)
}

func (f fakeStore) GetEntry(ctx context.Context, queueID string) (models.QueueEntry, error) {
	if f.getEntryFn == nil {
		return models.QueueEntry{}, nil
	}
	return f.getEntryFn(ctx, queueID)
}

func (f fakeStore) ListCounters(ctx context.Context, stationID string) ([]models.Counter, error) {
	if f.listCountersFn == nil {
		return nil, nil
	}
	return f.listCountersFn(ctx, stationID)
}

func (f fakeStore) ListStations(ctx context.Context) ([]models.Station, error) {
	if f.listStationsFn == nil {
		return nil, nil
	}
	return f.listStationsFn(ctx)
}

func (f fakeStore) StationSummaries(ctx context.Context) ([]models.StationSummary, error) {
	if f.summariesFn == nil {
		return nil, nil
	}
	return f.summariesFn(ctx)
}

func (f fakeStore) ListQueueEvents(ctx context.Context, queueID string) ([]store.QueueEvent, error) {
	if f.queueEventsFn == nil {
		return nil, nil
	}
	return f.queueEventsFn(ctx, queueID)
}

func (f fakeStore) ListOutboxEvents(ctx context.Context, offset store.OutboxOffset, limit int) ([]store.OutboxEvent, error) {
	if f.outboxFn == nil {
		return nil, nil
	}
	return f.outboxFn(ctx, offset, limit)
}

func (f fakeStore) GetOffset(ctx context.Context, consumer string) (store.OutboxOffset, error) {
	if f.getOffsetFn == nil {
		return store.OutboxOffset{}, nil
	}
	return f.getOffsetFn(ctx, consumer)
}

func (f fakeStore) UpdateOffset(ctx context.Context, consumer string, offset store.OutboxOffset) error {
	if f.updateOffsetFn == nil {
		return nil
	}
	return f.updateOffsetFn(ctx, consumer, offset)
}

func (f fakeStore) CleanupOutbox(ctx context.Context, before time.Time) error {
	if f.cleanupFn == nil {
		return nil
	}
	return f.cleanupFn(ctx, before)
}

func (f fakeStore) Login(ctx context.Context, email, password string) (store.Session, models.User, error) {
	if f.loginFn == nil {
		return store.Session{}, models.User{}, store.ErrInvalidCredentials
	}
	return f.loginFn(ctx, email, password)
}

func (f fakeStore) GetSession(ctx context.Context, sessionID string) (store.Session, models.User, error) {
	if f.getSessionFn == nil {
		return store.Session{}, models.User{}, store.ErrSessionNotFound
	}
	return f.getSessionFn(ctx, sessionID)
}

func cashierRequest(method, target string, body []byte, user models.User) *http.Request {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	}
	ctx := context.WithValue(req.Context(), authContextKey{}, authInfo{
		Session: store.Session{SessionID: "session-1", UID: user.UID},
		User:    user,
	})
	return req.WithContext(ctx)
}

func cashier() models.User {
	return models.User{UID: "cashier-1", DisplayName: "Test Cashier", Role: models.RoleCashier}
}

func TestEnterCounterSuccess(t *testing.T) {
	st := fakeStore{
		claimFn: func(ctx context.Context, counterID, cashierUID string) (models.Counter, error) {
			uid := cashierUID
			now := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)
			return models.Counter{CounterID: counterID, StationID: "station-1", Number: 2, CashierUID: &uid, ClaimedAt: &now}, nil
		},
	}
	h := NewHandler(st)

	req := cashierRequest(http.MethodPost, "/api/counters/counter-2/enter", nil, cashier())
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var counter models.Counter
	if err := json.NewDecoder(resp.Body).Decode(&counter); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if counter.CounterID != "counter-2" || counter.CashierUID == nil || *counter.CashierUID != "cashier-1" {
		t.Fatalf("unexpected counter response: %+v", counter)
	}
}

func TestEnterCounterOccupied(t *testing.T) {
	st := fakeStore{
		claimFn: func(ctx context.Context, counterID, cashierUID string) (models.Counter, error) {
			return models.Counter{}, store.ErrAlreadyOccupied
		},
	}
	h := NewHandler(st)

	req := cashierRequest(http.MethodPost, "/api/counters/counter-2/enter", nil, cashier())
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Error.Code != "counter_occupied" {
		t.Fatalf("expected counter_occupied, got %s", body.Error.Code)
	}
}

func TestEnterCounterPendingRole(t *testing.T) {
	h := NewHandler(fakeStore{})

	pending := models.User{UID: "pending-1", Role: models.RolePending}
	req := cashierRequest(http.MethodPost, "/api/counters/counter-2/enter", nil, pending)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
}

func TestEnterCounterForOtherCashierDenied(t *testing.T) {
	h := NewHandler(fakeStore{})

	body, _ := json.Marshal(map[string]string{"uid": "somebody-else"})
	req := cashierRequest(http.MethodPost, "/api/counters/counter-2/enter", body, cashier())
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
}

func TestExitCounterServiceInProgress(t *testing.T) {
	st := fakeStore{
		releaseFn: func(ctx context.Context, counterID, cashierUID string) error {
			return store.ErrServiceInProgress
		},
	}
	h := NewHandler(st)

	req := cashierRequest(http.MethodPost, "/api/counters/counter-2/exit", nil, cashier())
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	var body errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Error.Code != "service_in_progress" {
		t.Fatalf("expected service_in_progress, got %s", body.Error.Code)
	}
}

func TestExitCounterSuccess(t *testing.T) {
	released := false
	st := fakeStore{
		releaseFn: func(ctx context.Context, counterID, cashierUID string) error {
			released = counterID == "counter-2" && cashierUID == "cashier-1"
			return nil
		},
	}
	h := NewHandler(st)

	req := cashierRequest(http.MethodPost, "/api/counters/counter-2/exit", nil, cashier())
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", resp.Code)
	}
	if !released {
		t.Fatalf("expected release with session uid")
	}
}

func TestAssignedCounterNone(t *testing.T) {
	h := NewHandler(fakeStore{})

	req := cashierRequest(http.MethodPost, "/api/counters/assigned", nil, cashier())
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var body assignedCounterResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Assigned || body.Counter != nil {
		t.Fatalf("expected no assignment, got %+v", body)
	}
}

func TestStartServiceUsesAssignedCounter(t *testing.T) {
	uid := "cashier-1"
	st := fakeStore{
		assignedFn: func(ctx context.Context, cashierUID string) (models.Counter, bool, error) {
			return models.Counter{CounterID: "counter-7", StationID: "station-1", CashierUID: &uid}, true, nil
		},
		startFn: func(ctx context.Context, input store.StartServiceInput) (models.QueueEntry, error) {
			if input.CounterID != "counter-7" || input.QueueID != "queue-1" || input.CashierUID != uid {
				t.Fatalf("unexpected input: %+v", input)
			}
			counterID := input.CounterID
			return models.QueueEntry{QueueID: input.QueueID, StationID: "station-1", CounterID: &counterID, Status: models.StatusServing}, nil
		},
	}
	h := NewHandler(st)

	req := cashierRequest(http.MethodPost, "/api/queues/queue-1/start-service", nil, cashier())
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var entry models.QueueEntry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if entry.Status != models.StatusServing {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestStartServiceNoCounterClaimed(t *testing.T) {
	h := NewHandler(fakeStore{})

	req := cashierRequest(http.MethodPost, "/api/queues/queue-1/start-service", nil, cashier())
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	var body errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Error.Code != "counter_not_claimed" {
		t.Fatalf("expected counter_not_claimed, got %s", body.Error.Code)
	}
}

func TestStartServiceHeadChanged(t *testing.T) {
	st := fakeStore{
		startFn: func(ctx context.Context, input store.StartServiceInput) (models.QueueEntry, error) {
			return models.QueueEntry{}, store.ErrQueueHeadChanged
		},
	}
	h := NewHandler(st)

	body, _ := json.Marshal(map[string]string{"counter_id": "counter-7"})
	req := cashierRequest(http.MethodPost, "/api/queues/queue-1/start-service", body, cashier())
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	var payload errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	if payload.Error.Code != "queue_head_changed" {
		t.Fatalf("expected queue_head_changed, got %s", payload.Error.Code)
	}
}

func TestStartServiceEmptyQueue(t *testing.T) {
	st := fakeStore{
		startFn: func(ctx context.Context, input store.StartServiceInput) (models.QueueEntry, error) {
			return models.QueueEntry{}, store.ErrEmptyQueue
		},
	}
	h := NewHandler(st)

	body, _ := json.Marshal(map[string]string{"counter_id": "counter-7"})
	req := cashierRequest(http.MethodPost, "/api/queues/queue-1/start-service", body, cashier())
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	var payload errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	if payload.Error.Code != "queue_empty" {
		t.Fatalf("expected queue_empty, got %s", payload.Error.Code)
	}
}

func TestCompleteForwardsNotes(t *testing.T) {
	st := fakeStore{
		completeFn: func(ctx context.Context, input store.ResolveServiceInput) (models.QueueEntry, error) {
			if input.Notes != "paid in cash" || input.QueueID != "queue-1" {
				t.Fatalf("unexpected input: %+v", input)
			}
			return models.QueueEntry{QueueID: input.QueueID, Status: models.StatusCompleted}, nil
		},
	}
	h := NewHandler(st)

	body, _ := json.Marshal(map[string]string{"counter_id": "counter-7", "notes": "paid in cash"})
	req := cashierRequest(http.MethodPost, "/api/queues/queue-1/complete", body, cashier())
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestMarkNoShowNothingServing(t *testing.T) {
	st := fakeStore{
		noShowFn: func(ctx context.Context, input store.ResolveServiceInput) (models.QueueEntry, error) {
			return models.QueueEntry{}, store.ErrNothingServing
		},
	}
	h := NewHandler(st)

	body, _ := json.Marshal(map[string]string{"counter_id": "counter-7"})
	req := cashierRequest(http.MethodPost, "/api/queues/queue-1/mark-no-show", body, cashier())
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestCurrentServingEmpty(t *testing.T) {
	h := NewHandler(fakeStore{})

	req := cashierRequest(http.MethodGet, "/api/queues/counter/counter-7/current-serving", nil, cashier())
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var body currentServingResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Serving {
		t.Fatalf("expected no serving entry")
	}
}

func TestCreateQueueSuccess(t *testing.T) {
	st := fakeStore{
		createFn: func(ctx context.Context, input store.CreateEntryInput) (models.QueueEntry, error) {
			wait := 10
			return models.QueueEntry{
				QueueID:           "queue-1",
				StationID:         input.StationID,
				QueueNumber:       "CS-001",
				Status:            models.StatusWaiting,
				Position:          2,
				EstimatedWaitTime: &wait,
			}, nil
		},
	}
	h := NewHandler(st)

	body, _ := json.Marshal(map[string]string{
		"station_id":     "station-1",
		"purpose":        "tuition payment",
		"customer_email": "student@example.com",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/queues", bytes.NewReader(body))
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.Code)
	}
	var entry models.QueueEntry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if entry.QueueNumber != "CS-001" || entry.Position != 2 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestCreateQueueMissingStation(t *testing.T) {
	h := NewHandler(fakeStore{})

	body, _ := json.Marshal(map[string]string{"purpose": "tuition payment"})
	req := httptest.NewRequest(http.MethodPost, "/api/queues", bytes.NewReader(body))
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestWaitingListRequiresStation(t *testing.T) {
	h := NewHandler(fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/queues/waiting", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestLoginSuccess(t *testing.T) {
	st := fakeStore{
		loginFn: func(ctx context.Context, email, password string) (store.Session, models.User, error) {
			return store.Session{SessionID: "session-1", UID: "cashier-1", ExpiresAt: time.Now().Add(time.Hour)},
				models.User{UID: "cashier-1", Email: email, Role: models.RoleCashier}, nil
		},
	}
	h := NewHandler(st)

	body, _ := json.Marshal(map[string]string{"email": "cashier@example.com", "password": "secret"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var payload loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Token == "" || payload.User.UID != "cashier-1" {
		t.Fatalf("unexpected login response: %+v", payload)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	h := NewHandler(fakeStore{})

	body, _ := json.Marshal(map[string]string{"email": "cashier@example.com", "password": "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestMeWithoutSession(t *testing.T) {
	h := NewHandler(fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	resp := httptest.NewRecorder()
	h.Routes().ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
}

func TestAuthMiddlewarePublicPaths(t *testing.T) {
	h := NewHandler(fakeStore{
		listStationsFn: func(ctx context.Context) ([]models.Station, error) {
			return []models.Station{{StationID: "station-1", Name: "Cashier"}}, nil
		},
	})
	wrapped := AuthMiddleware(fakeStore{}, h.Routes())

	req := httptest.NewRequest(http.MethodGet, "/api/stations", nil)
	resp := httptest.NewRecorder()
	wrapped.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected public stations list, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/counters/counter-1/enter", nil)
	resp = httptest.NewRecorder()
	wrapped.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", resp.Code)
	}
}

func TestAuthMiddlewareValidSession(t *testing.T) {
	backing := fakeStore{
		getSessionFn: func(ctx context.Context, sessionID string) (store.Session, models.User, error) {
			if sessionID != "session-1" {
				return store.Session{}, models.User{}, store.ErrSessionNotFound
			}
			return store.Session{SessionID: sessionID, UID: "cashier-1"},
				models.User{UID: "cashier-1", Role: models.RoleCashier}, nil
		},
	}
	h := NewHandler(fakeStore{})
	wrapped := AuthMiddleware(backing, h.Routes())

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer session-1")
	resp := httptest.NewRecorder()
	wrapped.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var user models.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if user.UID != "cashier-1" {
		t.Fatalf("unexpected user: %+v", user)
	}
}
