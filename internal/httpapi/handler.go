package httpapi

import (
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strings"
	"time"

	"qms/cashier-service/internal/models"
	"qms/cashier-service/internal/store"
)

type Handler struct {
	store store.QueueStore
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

type createQueueRequest struct {
	StationID     string `json:"station_id"`
	Purpose       string `json:"purpose"`
	CustomerEmail string `json:"customer_email"`
	QRID          string `json:"qr_id"`
}

type enterCounterRequest struct {
	UID string `json:"uid"`
}

type assignedCounterRequest struct {
	UID string `json:"uid"`
}

type assignedCounterResponse struct {
	Assigned bool            `json:"assigned"`
	Counter  *models.Counter `json:"counter,omitempty"`
}

type currentServingResponse struct {
	Serving bool               `json:"serving"`
	Entry   *models.QueueEntry `json:"entry,omitempty"`
}

type startServiceRequest struct {
	CounterID string `json:"counter_id"`
}

type completeRequest struct {
	CounterID string `json:"counter_id"`
	Notes     string `json:"notes"`
}

type noShowRequest struct {
	CounterID string `json:"counter_id"`
	Reason    string `json:"reason"`
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(store store.QueueStore) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/me", h.handleMe)
	mux.HandleFunc("/api/counters/assigned", h.handleAssignedCounter)
	mux.HandleFunc("/api/counters/", h.handleCounters)
	mux.HandleFunc("/api/queues", h.handleCreateQueue)
	mux.HandleFunc("/api/queues/waiting", h.handleWaitingList)
	mux.HandleFunc("/api/queues/counter/", h.handleCounterServing)
	mux.HandleFunc("/api/queues/", h.handleQueueActions)
	mux.HandleFunc("/api/stations", h.handleStations)
	mux.HandleFunc("/api/stations/summary", h.handleStationSummaries)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	session, user, err := h.store.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     session.SessionID,
		ExpiresAt: session.ExpiresAt,
		User:      user,
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleAssignedCounter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	var req assignedCounterRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	uid := strings.TrimSpace(req.UID)
	if uid == "" {
		uid = user.UID
	}

	counter, found, err := h.store.AssignedCounter(r.Context(), uid)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, assignedCounterResponse{Assigned: false})
		return
	}
	writeJSON(w, http.StatusOK, assignedCounterResponse{Assigned: true, Counter: &counter})
}

// handleCounters serves GET /api/counters/{stationID} plus the claim and
// release actions POST /api/counters/{counterID}/enter and /exit.
func (h *Handler) handleCounters(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/counters/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleListCounters(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "enter":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleEnterCounter(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "exit":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleExitCounter(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleListCounters(w http.ResponseWriter, r *http.Request, stationID string) {
	counters, err := h.store.ListCounters(r.Context(), stationID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	if counters == nil {
		counters = []models.Counter{}
	}
	writeJSON(w, http.StatusOK, counters)
}

func (h *Handler) handleEnterCounter(w http.ResponseWriter, r *http.Request, counterID string) {
	user, ok := requireApproved(w, r)
	if !ok {
		return
	}

	var req enterCounterRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	uid := strings.TrimSpace(req.UID)
	if uid == "" {
		uid = user.UID
	}
	if uid != user.UID && !isAdmin(user) {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "cannot claim a counter for another cashier")
		return
	}

	counter, err := h.store.ClaimCounter(r.Context(), counterID, uid)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, counter)
}

func (h *Handler) handleExitCounter(w http.ResponseWriter, r *http.Request, counterID string) {
	user, ok := requireApproved(w, r)
	if !ok {
		return
	}

	var req enterCounterRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	uid := strings.TrimSpace(req.UID)
	if uid == "" {
		uid = user.UID
	}
	if uid != user.UID && !isAdmin(user) {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "cannot release a counter for another cashier")
		return
	}

	if err := h.store.ReleaseCounter(r.Context(), counterID, uid); err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreateQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req createQueueRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.StationID = strings.TrimSpace(req.StationID)
	req.Purpose = strings.TrimSpace(req.Purpose)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	if req.StationID == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "station_id is required")
		return
	}
	if req.CustomerEmail != "" && !strings.Contains(req.CustomerEmail, "@") {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "customer_email must be an email address")
		return
	}

	entry, err := h.store.CreateEntry(r.Context(), store.CreateEntryInput{
		StationID:     req.StationID,
		Purpose:       req.Purpose,
		CustomerEmail: req.CustomerEmail,
		QRID:          strings.TrimSpace(req.QRID),
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleWaitingList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	stationID := strings.TrimSpace(r.URL.Query().Get("station_id"))
	if stationID == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "station_id is required")
		return
	}
	entries, err := h.store.WaitingList(r.Context(), stationID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	if entries == nil {
		entries = []models.QueueEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleCounterServing serves GET /api/queues/counter/{counterID}/current-serving.
func (h *Handler) handleCounterServing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/queues/counter/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "current-serving" {
		http.NotFound(w, r)
		return
	}

	entry, found, err := h.store.CurrentServing(r.Context(), parts[0])
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, currentServingResponse{Serving: false})
		return
	}
	writeJSON(w, http.StatusOK, currentServingResponse{Serving: true, Entry: &entry})
}

// handleQueueActions routes GET /api/queues/{id}, GET /api/queues/{id}/events,
// and the POST actions start-service, complete, mark-no-show, and cancel.
func (h *Handler) handleQueueActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/queues/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGetQueue(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "events":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleQueueEvents(w, r, parts[0])
	case len(parts) == 2 && r.Method == http.MethodPost:
		switch parts[1] {
		case "start-service":
			h.handleStartService(w, r, parts[0])
		case "complete":
			h.handleComplete(w, r, parts[0])
		case "mark-no-show":
			h.handleMarkNoShow(w, r, parts[0])
		case "cancel":
			h.handleCancel(w, r, parts[0])
		default:
			http.NotFound(w, r)
		}
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleGetQueue(w http.ResponseWriter, r *http.Request, queueID string) {
	entry, err := h.store.GetEntry(r.Context(), queueID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleQueueEvents(w http.ResponseWriter, r *http.Request, queueID string) {
	events, err := h.store.ListQueueEvents(r.Context(), queueID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	if events == nil {
		events = []store.QueueEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) handleStartService(w http.ResponseWriter, r *http.Request, queueID string) {
	user, ok := requireApproved(w, r)
	if !ok {
		return
	}

	var req startServiceRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	counterID, ok := h.resolveCounter(w, r, strings.TrimSpace(req.CounterID), user)
	if !ok {
		return
	}

	entry, err := h.store.StartService(r.Context(), store.StartServiceInput{
		QueueID:    queueID,
		CounterID:  counterID,
		CashierUID: user.UID,
		ServedAt:   time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request, queueID string) {
	user, ok := requireApproved(w, r)
	if !ok {
		return
	}

	var req completeRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	counterID, ok := h.resolveCounter(w, r, strings.TrimSpace(req.CounterID), user)
	if !ok {
		return
	}

	entry, err := h.store.CompleteService(r.Context(), store.ResolveServiceInput{
		CounterID:  counterID,
		QueueID:    queueID,
		CashierUID: user.UID,
		Notes:      strings.TrimSpace(req.Notes),
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleMarkNoShow(w http.ResponseWriter, r *http.Request, queueID string) {
	user, ok := requireApproved(w, r)
	if !ok {
		return
	}

	var req noShowRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	counterID, ok := h.resolveCounter(w, r, strings.TrimSpace(req.CounterID), user)
	if !ok {
		return
	}

	entry, err := h.store.MarkNoShow(r.Context(), store.ResolveServiceInput{
		CounterID:  counterID,
		QueueID:    queueID,
		CashierUID: user.UID,
		Reason:     strings.TrimSpace(req.Reason),
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request, queueID string) {
	entry, err := h.store.CancelEntry(r.Context(), queueID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// resolveCounter picks the counter a queue action targets: an explicit
// counter_id in the body, else the cashier's claimed counter.
func (h *Handler) resolveCounter(w http.ResponseWriter, r *http.Request, counterID string, user models.User) (string, bool) {
	if counterID != "" {
		return counterID, true
	}
	counter, found, err := h.store.AssignedCounter(r.Context(), user.UID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return "", false
	}
	if !found {
		writeError(w, requestIDFromRequest(r), http.StatusConflict, "counter_not_claimed", "cashier has no claimed counter")
		return "", false
	}
	return counter.CounterID, true
}

func (h *Handler) handleStations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	stations, err := h.store.ListStations(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	if stations == nil {
		stations = []models.Station{}
	}
	writeJSON(w, http.StatusOK, stations)
}

func (h *Handler) handleStationSummaries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	summaries, err := h.store.StationSummaries(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, requestIDFromRequest(r), status, code, msg)
		return
	}
	if summaries == nil {
		summaries = []models.StationSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func isAdmin(user models.User) bool {
	return user.Role == models.RoleAdmin || user.Role == models.RoleSuperAdmin
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrStationNotFound):
		return http.StatusNotFound, "station_not_found", "station not found"
	case errors.Is(err, store.ErrCounterNotFound):
		return http.StatusNotFound, "counter_not_found", "counter not found"
	case errors.Is(err, store.ErrQueueNotFound):
		return http.StatusNotFound, "queue_not_found", "queue entry not found"
	case errors.Is(err, store.ErrAlreadyOccupied):
		return http.StatusConflict, "counter_occupied", "counter is held by another cashier"
	case errors.Is(err, store.ErrCashierAlreadyAssigned):
		return http.StatusConflict, "cashier_already_assigned", "cashier already holds a counter"
	case errors.Is(err, store.ErrNotOwner):
		return http.StatusForbidden, "access_denied", "counter is held by another cashier"
	case errors.Is(err, store.ErrServiceInProgress):
		return http.StatusConflict, "service_in_progress", "finish the current service before releasing the counter"
	case errors.Is(err, store.ErrCounterNotClaimed):
		return http.StatusConflict, "counter_not_claimed", "counter has no cashier"
	case errors.Is(err, store.ErrCounterBusy):
		return http.StatusConflict, "counter_busy", "counter is already serving an entry"
	case errors.Is(err, store.ErrNothingServing):
		return http.StatusConflict, "nothing_serving", "no entry in service at this counter"
	case errors.Is(err, store.ErrEmptyQueue):
		return http.StatusConflict, "queue_empty", "no waiting entries for this station"
	case errors.Is(err, store.ErrQueueHeadChanged):
		return http.StatusConflict, "queue_head_changed", "entry is no longer at the head of the queue"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "queue entry state does not allow this action"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "email or password is incorrect"
	case errors.Is(err, store.ErrAccessDenied):
		return http.StatusForbidden, "access_denied", "access denied"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
