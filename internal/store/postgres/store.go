package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"qms/cashier-service/internal/models"
	"qms/cashier-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const queueNumberPad = 3

const entryColumns = `queue_id, station_id, counter_id, queue_number, purpose, customer_email,
	status, position, estimated_wait_time, qr_id, COALESCE(notes, ''), COALESCE(reason, ''),
	created_at, served_at, completed_at`

type Store struct {
	pool              *pgxpool.Pool
	avgServiceMinutes int
	sessionTTL        time.Duration
}

type Options struct {
	AvgServiceMinutes int
	SessionTTL        time.Duration
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	avg := options.AvgServiceMinutes
	if avg <= 0 {
		avg = 5
	}
	ttl := options.SessionTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Store{pool: pool, avgServiceMinutes: avg, sessionTTL: ttl}
}

func (s *Store) ClaimCounter(ctx context.Context, counterID, cashierUID string) (models.Counter, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Counter{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	counter, err := lockCounter(ctx, tx, counterID)
	if err != nil {
		return models.Counter{}, err
	}
	if counter.Occupied() {
		err = store.ErrAlreadyOccupied
		return models.Counter{}, err
	}

	var heldCounter string
	row := tx.QueryRow(ctx, `
		SELECT counter_id
		FROM counters
		WHERE cashier_uid = $1
		LIMIT 1
	`, cashierUID)
	switch err = row.Scan(&heldCounter); {
	case err == nil:
		err = store.ErrCashierAlreadyAssigned
		return models.Counter{}, err
	case !errors.Is(err, pgx.ErrNoRows):
		return models.Counter{}, err
	default:
		err = nil
	}

	claimedAt := time.Now().UTC()
	row = tx.QueryRow(ctx, `
		UPDATE counters
		SET cashier_uid = $2,
			claimed_at = $3
		WHERE counter_id = $1 AND cashier_uid IS NULL
		RETURNING counter_id, station_id, number, cashier_uid, claimed_at
	`, counterID, cashierUID, claimedAt)
	counter, err = scanCounter(row)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			err = store.ErrAlreadyOccupied
		case isUniqueViolation(err):
			// Concurrent claim by the same cashier on another counter: the
			// pre-check saw no assignment but the partial unique index on
			// cashier_uid rejected the second UPDATE.
			err = store.ErrCashierAlreadyAssigned
		}
		return models.Counter{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Counter{}, err
	}
	return counter, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func (s *Store) ReleaseCounter(ctx context.Context, counterID, cashierUID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	counter, err := lockCounter(ctx, tx, counterID)
	if err != nil {
		return err
	}
	if counter.CashierUID == nil || *counter.CashierUID != cashierUID {
		err = store.ErrNotOwner
		return err
	}

	var serving bool
	row := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM queue_entries
			WHERE counter_id = $1 AND status = 'serving'
		)
	`, counterID)
	if err = row.Scan(&serving); err != nil {
		return err
	}
	if serving {
		err = store.ErrServiceInProgress
		return err
	}

	if _, err = tx.Exec(ctx, `
		UPDATE counters
		SET cashier_uid = NULL,
			claimed_at = NULL
		WHERE counter_id = $1
	`, counterID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Store) StartService(ctx context.Context, input store.StartServiceInput) (models.QueueEntry, error) {
	if !store.ValidTransition("start_service", models.StatusWaiting) {
		return models.QueueEntry{}, store.ErrInvalidState
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueEntry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	counter, err := lockCounter(ctx, tx, input.CounterID)
	if err != nil {
		return models.QueueEntry{}, err
	}
	if counter.CashierUID == nil {
		err = store.ErrCounterNotClaimed
		return models.QueueEntry{}, err
	}
	if input.CashierUID != "" && *counter.CashierUID != input.CashierUID {
		err = store.ErrNotOwner
		return models.QueueEntry{}, err
	}

	var busy bool
	row := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM queue_entries
			WHERE counter_id = $1 AND status = 'serving'
		)
	`, input.CounterID)
	if err = row.Scan(&busy); err != nil {
		return models.QueueEntry{}, err
	}
	if busy {
		err = store.ErrCounterBusy
		return models.QueueEntry{}, err
	}

	var headID string
	row = tx.QueryRow(ctx, `
		SELECT queue_id
		FROM queue_entries
		WHERE station_id = $1 AND status = 'waiting'
		ORDER BY position ASC, created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`, counter.StationID)
	if err = row.Scan(&headID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, store.ErrEmptyQueue
		}
		return models.QueueEntry{}, err
	}
	if headID != input.QueueID {
		err = classifyStaleStart(ctx, tx, input.QueueID)
		return models.QueueEntry{}, err
	}

	servedAt := input.ServedAt
	if servedAt.IsZero() {
		servedAt = time.Now().UTC()
	}

	row = tx.QueryRow(ctx, `
		UPDATE queue_entries
		SET status = 'serving',
			counter_id = $2,
			served_at = $3,
			position = 0,
			estimated_wait_time = NULL
		WHERE queue_id = $1 AND status = 'waiting'
		RETURNING `+entryColumns+`
	`, headID, input.CounterID, servedAt)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, store.ErrQueueHeadChanged
		}
		return models.QueueEntry{}, err
	}

	avg, err := stationAvgMinutes(ctx, tx, counter.StationID, s.avgServiceMinutes)
	if err != nil {
		return models.QueueEntry{}, err
	}
	updates, err := reassignPositions(ctx, tx, counter.StationID, avg)
	if err != nil {
		return models.QueueEntry{}, err
	}

	if err = insertEntryOutboxEvent(ctx, tx, "queue.serving", entry); err != nil {
		return models.QueueEntry{}, err
	}
	if err = insertPositionsOutboxEvent(ctx, tx, counter.StationID, updates); err != nil {
		return models.QueueEntry{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.QueueEntry{}, err
	}
	return entry, nil
}

// classifyStaleStart explains why a requested entry was not the dequeued head.
func classifyStaleStart(ctx context.Context, tx pgx.Tx, queueID string) error {
	var status string
	row := tx.QueryRow(ctx, `
		SELECT status
		FROM queue_entries
		WHERE queue_id = $1
	`, queueID)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrQueueNotFound
		}
		return err
	}
	if status != models.StatusWaiting {
		return store.ErrInvalidState
	}
	return store.ErrQueueHeadChanged
}

func (s *Store) CompleteService(ctx context.Context, input store.ResolveServiceInput) (models.QueueEntry, error) {
	return s.resolveService(ctx, input, "complete", models.StatusCompleted, "queue.completed")
}

func (s *Store) MarkNoShow(ctx context.Context, input store.ResolveServiceInput) (models.QueueEntry, error) {
	return s.resolveService(ctx, input, "no_show", models.StatusNoShow, "queue.no_show")
}

func (s *Store) resolveService(ctx context.Context, input store.ResolveServiceInput, action, toStatus, eventType string) (models.QueueEntry, error) {
	if !store.ValidTransition(action, models.StatusServing) {
		return models.QueueEntry{}, store.ErrInvalidState
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueEntry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	counter, err := lockCounter(ctx, tx, input.CounterID)
	if err != nil {
		return models.QueueEntry{}, err
	}
	if input.CashierUID != "" && (counter.CashierUID == nil || *counter.CashierUID != input.CashierUID) {
		err = store.ErrNotOwner
		return models.QueueEntry{}, err
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	row := tx.QueryRow(ctx, `
		UPDATE queue_entries
		SET status = $2,
			completed_at = $3,
			notes = NULLIF($4, ''),
			reason = NULLIF($5, '')
		WHERE counter_id = $1 AND status = 'serving'
			AND ($6 = '' OR queue_id = $6)
		RETURNING `+entryColumns+`
	`, input.CounterID, toStatus, occurredAt, input.Notes, input.Reason, input.QueueID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, store.ErrNothingServing
		}
		return models.QueueEntry{}, err
	}

	if err = insertEntryOutboxEvent(ctx, tx, eventType, entry); err != nil {
		return models.QueueEntry{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.QueueEntry{}, err
	}
	return entry, nil
}

func (s *Store) CancelEntry(ctx context.Context, queueID string) (models.QueueEntry, error) {
	if !store.ValidTransition("cancel", models.StatusWaiting) {
		return models.QueueEntry{}, store.ErrInvalidState
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueEntry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		UPDATE queue_entries
		SET status = 'cancelled',
			position = 0,
			estimated_wait_time = NULL
		WHERE queue_id = $1 AND status = 'waiting'
		RETURNING `+entryColumns+`
	`, queueID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var status string
			lookup := tx.QueryRow(ctx, `SELECT status FROM queue_entries WHERE queue_id = $1`, queueID)
			if scanErr := lookup.Scan(&status); scanErr != nil {
				if errors.Is(scanErr, pgx.ErrNoRows) {
					err = store.ErrQueueNotFound
					return models.QueueEntry{}, err
				}
				err = scanErr
				return models.QueueEntry{}, err
			}
			err = store.ErrInvalidState
			return models.QueueEntry{}, err
		}
		return models.QueueEntry{}, err
	}

	avg, err := stationAvgMinutes(ctx, tx, entry.StationID, s.avgServiceMinutes)
	if err != nil {
		return models.QueueEntry{}, err
	}
	updates, err := reassignPositions(ctx, tx, entry.StationID, avg)
	if err != nil {
		return models.QueueEntry{}, err
	}

	if err = insertEntryOutboxEvent(ctx, tx, "queue.cancelled", entry); err != nil {
		return models.QueueEntry{}, err
	}
	if err = insertPositionsOutboxEvent(ctx, tx, entry.StationID, updates); err != nil {
		return models.QueueEntry{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.QueueEntry{}, err
	}
	return entry, nil
}

func (s *Store) CreateEntry(ctx context.Context, input store.CreateEntryInput) (models.QueueEntry, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueEntry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var code string
	var avg sql.NullInt64
	row := tx.QueryRow(ctx, `
		SELECT code, avg_service_minutes
		FROM stations
		WHERE station_id = $1
		FOR UPDATE
	`, input.StationID)
	if err = row.Scan(&code, &avg); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, store.ErrStationNotFound
		}
		return models.QueueEntry{}, err
	}
	avgMinutes := s.avgServiceMinutes
	if avg.Valid && avg.Int64 > 0 {
		avgMinutes = int(avg.Int64)
	}

	seq, err := nextQueueNumber(ctx, tx, input.StationID)
	if err != nil {
		return models.QueueEntry{}, err
	}
	formattedNumber := fmt.Sprintf("%s-%0*d", strings.ToUpper(code), queueNumberPad, seq)

	var position int
	row = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(position), 0) + 1
		FROM queue_entries
		WHERE station_id = $1 AND status = 'waiting'
	`, input.StationID)
	if err = row.Scan(&position); err != nil {
		return models.QueueEntry{}, err
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	qrID := input.QRID
	if qrID == "" {
		qrID = uuid.NewString()
	}

	row = tx.QueryRow(ctx, `
		INSERT INTO queue_entries (
			queue_id, station_id, queue_number, purpose, customer_email,
			status, position, estimated_wait_time, qr_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+entryColumns+`
	`, uuid.NewString(), input.StationID, formattedNumber, input.Purpose, input.CustomerEmail,
		models.StatusWaiting, position, position*avgMinutes, qrID, createdAt)
	entry, err := scanEntry(row)
	if err != nil {
		return models.QueueEntry{}, err
	}

	if err = insertEntryOutboxEvent(ctx, tx, "queue.created", entry); err != nil {
		return models.QueueEntry{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.QueueEntry{}, err
	}
	return entry, nil
}

func (s *Store) CurrentServing(ctx context.Context, counterID string) (models.QueueEntry, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE counter_id = $1 AND status = 'serving'
		LIMIT 1
	`, counterID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, false, nil
		}
		return models.QueueEntry{}, false, err
	}
	return entry, true, nil
}

func (s *Store) AssignedCounter(ctx context.Context, cashierUID string) (models.Counter, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT counter_id, station_id, number, cashier_uid, claimed_at
		FROM counters
		WHERE cashier_uid = $1
		LIMIT 1
	`, cashierUID)
	counter, err := scanCounter(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Counter{}, false, nil
		}
		return models.Counter{}, false, err
	}
	return counter, true, nil
}

func (s *Store) WaitingList(ctx context.Context, stationID string) ([]models.QueueEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE station_id = $1 AND status = 'waiting'
		ORDER BY position ASC
	`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.QueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) GetEntry(ctx context.Context, queueID string) (models.QueueEntry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE queue_id = $1
	`, queueID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, store.ErrQueueNotFound
		}
		return models.QueueEntry{}, err
	}
	return entry, nil
}

func (s *Store) ListCounters(ctx context.Context, stationID string) ([]models.Counter, error) {
	var exists bool
	row := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM stations WHERE station_id = $1)
	`, stationID)
	if err := row.Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrStationNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT counter_id, station_id, number, cashier_uid, claimed_at
		FROM counters
		WHERE station_id = $1
		ORDER BY number ASC
	`, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counters []models.Counter
	for rows.Next() {
		counter, err := scanCounter(rows)
		if err != nil {
			return nil, err
		}
		counters = append(counters, counter)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counters, nil
}

func (s *Store) ListStations(ctx context.Context) ([]models.Station, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT station_id, name, COALESCE(description, ''), COALESCE(avg_service_minutes, 0)
		FROM stations
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		var station models.Station
		if err := rows.Scan(&station.StationID, &station.Name, &station.Description, &station.AvgServiceMinutes); err != nil {
			return nil, err
		}
		stations = append(stations, station)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stations, nil
}

func (s *Store) StationSummaries(ctx context.Context) ([]models.StationSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.station_id, s.name,
			(SELECT COUNT(1) FROM counters c WHERE c.station_id = s.station_id),
			(SELECT COUNT(1) FROM counters c WHERE c.station_id = s.station_id AND c.cashier_uid IS NOT NULL),
			(SELECT COUNT(1) FROM queue_entries q WHERE q.station_id = s.station_id AND q.status = 'waiting'),
			COALESCE((
				SELECT AVG(q.estimated_wait_time)
				FROM queue_entries q
				WHERE q.station_id = s.station_id AND q.status = 'waiting'
			), 0)
		FROM stations s
		ORDER BY s.name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []models.StationSummary
	for rows.Next() {
		var summary models.StationSummary
		if err := rows.Scan(&summary.StationID, &summary.Name, &summary.CountersTotal,
			&summary.CountersOccupied, &summary.WaitingCount, &summary.AvgEstimatedWait); err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *Store) ListQueueEvents(ctx context.Context, queueID string) ([]store.QueueEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT queue_id, queue_seq, type, payload, created_at, COALESCE(prev_hash, ''), hash
		FROM queue_events
		WHERE queue_id = $1
		ORDER BY queue_seq ASC
	`, queueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.QueueEvent
	for rows.Next() {
		var event store.QueueEvent
		if err := rows.Scan(&event.QueueID, &event.QueueSeq, &event.Type, &event.Payload, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, offset store.OutboxOffset, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	lastTime := offset.LastEventTime
	if lastTime.IsZero() {
		lastTime = time.Unix(0, 0).UTC()
	}
	lastID := offset.LastEventID
	if lastID == "" {
		lastID = "00000000-0000-0000-0000-000000000000"
	}

	rows, err := s.pool.Query(ctx, `
		SELECT event_id, station_id, type, payload_json, created_at
		FROM outbox_events
		WHERE (created_at, event_id) > ($1, $2)
		ORDER BY created_at ASC, event_id ASC
		LIMIT $3
	`, lastTime, lastID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.StationID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) GetOffset(ctx context.Context, consumer string) (store.OutboxOffset, error) {
	var offset store.OutboxOffset
	var lastTime sql.NullTime
	var lastID sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT last_event_time, last_event_id
		FROM outbox_offsets
		WHERE consumer = $1
	`, consumer)
	if err := row.Scan(&lastTime, &lastID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.OutboxOffset{}, nil
		}
		return store.OutboxOffset{}, err
	}
	if lastTime.Valid {
		offset.LastEventTime = lastTime.Time
	}
	if lastID.Valid {
		offset.LastEventID = lastID.String
	}
	return offset, nil
}

func (s *Store) UpdateOffset(ctx context.Context, consumer string, offset store.OutboxOffset) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO outbox_offsets (consumer, last_event_time, last_event_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (consumer)
		DO UPDATE SET last_event_time = EXCLUDED.last_event_time, last_event_id = EXCLUDED.last_event_id
	`, consumer, offset.LastEventTime, offset.LastEventID)
	return err
}

func (s *Store) CleanupOutbox(ctx context.Context, before time.Time) error {
	if before.IsZero() {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		DELETE FROM outbox_events
		WHERE created_at < $1
	`, before)
	return err
}

func (s *Store) Login(ctx context.Context, email, password string) (store.Session, models.User, error) {
	var user models.User
	var passwordHash string
	var stationIDNull sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT uid, display_name, email, password_hash, role, station_id, created_at
		FROM users
		WHERE email = $1
	`, email)
	if err := row.Scan(&user.UID, &user.DisplayName, &user.Email, &passwordHash, &user.Role, &stationIDNull, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, models.User{}, store.ErrInvalidCredentials
		}
		return store.Session{}, models.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return store.Session{}, models.User{}, store.ErrInvalidCredentials
	}
	user.StationID = nullStringPtr(stationIDNull)

	session := store.Session{
		SessionID: uuid.NewString(),
		UID:       user.UID,
		ExpiresAt: time.Now().UTC().Add(s.sessionTTL),
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, uid, expires_at)
		VALUES ($1, $2, $3)
	`, session.SessionID, session.UID, session.ExpiresAt); err != nil {
		return store.Session{}, models.User{}, err
	}
	return session, user, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, models.User, error) {
	var session store.Session
	var user models.User
	var stationIDNull sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT se.session_id, se.uid, se.expires_at,
			u.uid, u.display_name, u.email, u.role, u.station_id, u.created_at
		FROM sessions se
		JOIN users u ON u.uid = se.uid
		WHERE se.session_id = $1 AND se.expires_at > NOW()
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.UID, &session.ExpiresAt,
		&user.UID, &user.DisplayName, &user.Email, &user.Role, &stationIDNull, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, models.User{}, store.ErrSessionNotFound
		}
		return store.Session{}, models.User{}, err
	}
	user.StationID = nullStringPtr(stationIDNull)
	return session, user, nil
}

type positionUpdate struct {
	QueueID           string `json:"queue_id"`
	Position          int    `json:"position"`
	EstimatedWaitTime int    `json:"estimated_wait_time"`
}

// reassignPositions renumbers a station's waiting set to a dense 1-based
// sequence preserving relative order. Rows already in place are left alone,
// so reapplying to a contiguous sequence touches nothing.
func reassignPositions(ctx context.Context, tx pgx.Tx, stationID string, avgMinutes int) ([]positionUpdate, error) {
	rows, err := tx.Query(ctx, `
		WITH ranked AS (
			SELECT queue_id, ROW_NUMBER() OVER (ORDER BY position ASC, created_at ASC) AS new_pos
			FROM (
				SELECT queue_id, position, created_at
				FROM queue_entries
				WHERE station_id = $1 AND status = 'waiting'
				ORDER BY position ASC, created_at ASC
				FOR UPDATE
			) locked
		)
		UPDATE queue_entries q
		SET position = ranked.new_pos,
			estimated_wait_time = ranked.new_pos * $2
		FROM ranked
		WHERE q.queue_id = ranked.queue_id
			AND (q.position <> ranked.new_pos OR q.estimated_wait_time IS DISTINCT FROM (ranked.new_pos * $2)::int)
		RETURNING q.queue_id, q.position, q.estimated_wait_time
	`, stationID, avgMinutes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updates []positionUpdate
	for rows.Next() {
		var update positionUpdate
		if err := rows.Scan(&update.QueueID, &update.Position, &update.EstimatedWaitTime); err != nil {
			return nil, err
		}
		updates = append(updates, update)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return updates, nil
}

func stationAvgMinutes(ctx context.Context, tx pgx.Tx, stationID string, fallback int) (int, error) {
	var avg sql.NullInt64
	row := tx.QueryRow(ctx, `
		SELECT avg_service_minutes
		FROM stations
		WHERE station_id = $1
	`, stationID)
	if err := row.Scan(&avg); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, store.ErrStationNotFound
		}
		return 0, err
	}
	if avg.Valid && avg.Int64 > 0 {
		return int(avg.Int64), nil
	}
	return fallback, nil
}

func nextQueueNumber(ctx context.Context, tx pgx.Tx, stationID string) (int64, error) {
	var next int64
	row := tx.QueryRow(ctx, `
		INSERT INTO queue_sequences (station_id, next_number)
		VALUES ($1, 1)
		ON CONFLICT (station_id)
		DO UPDATE SET next_number = queue_sequences.next_number + 1
		RETURNING next_number
	`, stationID)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func lockCounter(ctx context.Context, tx pgx.Tx, counterID string) (models.Counter, error) {
	row := tx.QueryRow(ctx, `
		SELECT counter_id, station_id, number, cashier_uid, claimed_at
		FROM counters
		WHERE counter_id = $1
		FOR UPDATE
	`, counterID)
	counter, err := scanCounter(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Counter{}, store.ErrCounterNotFound
		}
		return models.Counter{}, err
	}
	return counter, nil
}

func insertEntryOutboxEvent(ctx context.Context, tx pgx.Tx, eventType string, entry models.QueueEntry) error {
	payload := map[string]interface{}{
		"queue_id":       entry.QueueID,
		"queue_number":   entry.QueueNumber,
		"station_id":     entry.StationID,
		"status":         entry.Status,
		"position":       entry.Position,
		"counter_id":     entry.CounterID,
		"customer_email": entry.CustomerEmail,
		"purpose":        entry.Purpose,
		"created_at":     entry.CreatedAt,
		"served_at":      entry.ServedAt,
		"completed_at":   entry.CompletedAt,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, station_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), entry.StationID, eventType, payloadJSON, time.Now().UTC()); err != nil {
		return err
	}
	return insertQueueEvent(ctx, tx, entry.QueueID, eventType, payloadJSON)
}

func insertPositionsOutboxEvent(ctx context.Context, tx pgx.Tx, stationID string, updates []positionUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	payload := map[string]interface{}{
		"station_id": stationID,
		"positions":  updates,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, station_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), stationID, "queue.positions", payloadJSON, time.Now().UTC())
	return err
}

func insertQueueEvent(ctx context.Context, tx pgx.Tx, queueID, eventType string, payload []byte) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, queueID); err != nil {
		return err
	}

	var lastSeq int
	var prevHash sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT queue_seq, hash
		FROM queue_events
		WHERE queue_id = $1
		ORDER BY queue_seq DESC
		LIMIT 1
		FOR UPDATE
	`, queueID)
	if err := row.Scan(&lastSeq, &prevHash); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	nextSeq := lastSeq + 1
	prev := ""
	if prevHash.Valid {
		prev = prevHash.String
	}
	// timestamptz keeps microseconds; truncate so the stored row re-hashes
	// to the same value it was written with.
	createdAt := time.Now().UTC().Truncate(time.Microsecond)
	hash := store.ComputeQueueEventHash(prev, queueID, eventType, payload, createdAt, nextSeq)

	_, err := tx.Exec(ctx, `
		INSERT INTO queue_events (queue_id, queue_seq, type, payload, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, queueID, nextSeq, eventType, payload, createdAt, prev, hash)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (models.QueueEntry, error) {
	var entry models.QueueEntry
	var counterIDNull sql.NullString
	var waitNull sql.NullInt64
	var qrIDNull sql.NullString
	var servedAtNull sql.NullTime
	var completedAtNull sql.NullTime
	if err := row.Scan(&entry.QueueID, &entry.StationID, &counterIDNull, &entry.QueueNumber,
		&entry.Purpose, &entry.CustomerEmail, &entry.Status, &entry.Position, &waitNull,
		&qrIDNull, &entry.Notes, &entry.Reason, &entry.CreatedAt, &servedAtNull, &completedAtNull); err != nil {
		return models.QueueEntry{}, err
	}
	entry.CounterID = nullStringPtr(counterIDNull)
	entry.QRID = nullStringPtr(qrIDNull)
	entry.ServedAt = nullTimePtr(servedAtNull)
	entry.CompletedAt = nullTimePtr(completedAtNull)
	if waitNull.Valid {
		wait := int(waitNull.Int64)
		entry.EstimatedWaitTime = &wait
	}
	return entry, nil
}

func scanCounter(row rowScanner) (models.Counter, error) {
	var counter models.Counter
	var cashierUIDNull sql.NullString
	var claimedAtNull sql.NullTime
	if err := row.Scan(&counter.CounterID, &counter.StationID, &counter.Number, &cashierUIDNull, &claimedAtNull); err != nil {
		return models.Counter{}, err
	}
	counter.CashierUID = nullStringPtr(cashierUIDNull)
	counter.ClaimedAt = nullTimePtr(claimedAtNull)
	return counter, nil
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	v := value.Time
	return &v
}
