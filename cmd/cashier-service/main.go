package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"qms/cashier-service/internal/config"
	"qms/cashier-service/internal/httpapi"
	"qms/cashier-service/internal/hub"
	"qms/cashier-service/internal/store"
	"qms/cashier-service/internal/store/postgres"
	"qms/cashier-service/internal/telemetry"
	"qms/cashier-service/internal/worker"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const realtimeConsumer = "realtime"

type eventEnvelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("cashier-service")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	st := postgres.NewStore(pool, postgres.Options{
		AvgServiceMinutes: cfg.AvgServiceMinutes,
		SessionTTL:        cfg.SessionTTL,
	})
	handler := httpapi.NewHandler(st)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:      cfg.RateLimitPerMinute,
		IPBurst:          cfg.RateLimitBurst,
		TokenPerMinute:   cfg.TokenRateLimitPerMinute,
		TokenBurst:       cfg.TokenRateLimitBurst,
		StationPerMinute: cfg.StationRateLimitPerMinute,
		StationBurst:     cfg.StationRateLimitBurst,
	})

	h := hub.New()
	mux := http.NewServeMux()
	mux.Handle("/realtime/", newRealtimeHandler(st, h))
	mux.Handle("/", handler.Routes())

	chain := handlerChain(st, limiter, mux)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(chain, "cashier-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("cashier-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	go runOutboxPoller(st, h, cfg)

	go func() {
		if cfg.NotifInterval <= 0 {
			return
		}
		notifier := worker.New(st, worker.Config{
			BatchSize:     cfg.NotifBatchSize,
			EmailProvider: cfg.EmailProvider,
		})
		ticker := time.NewTicker(cfg.NotifInterval)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := notifier.Run(ctx); err != nil {
				log.Printf("notifier error: %v", err)
			}
			cancel()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// handlerChain mounts the rate limiter outermost so throttled requests are
// rejected before the session lookup in the auth middleware hits the
// database. The logger sits inside auth so request lines carry the uid.
func handlerChain(st store.QueueStore, limiter *httpapi.RateLimiter, mux http.Handler) http.Handler {
	return limiter.Middleware(httpapi.AuthMiddleware(st, httpapi.LoggingMiddleware(mux)))
}

// newRealtimeHandler upgrades sockjs sessions, authenticates them against
// the session store, and replays a waiting-list snapshot on every subscribe
// so reconnecting displays catch up before incremental events resume.
func newRealtimeHandler(st store.QueueStore, h *hub.Hub) http.Handler {
	return sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		req := session.Request()
		token := sessionToken(req)
		if token == "" {
			_ = session.Close(4001, "missing session")
			return
		}
		if _, _, err := st.GetSession(context.Background(), token); err != nil {
			_ = session.Close(4002, "invalid session")
			return
		}

		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.UpdateSubscription(client, hub.Subscription{})
				continue
			}
			h.UpdateSubscription(client, hub.Subscription{StationID: parsed.StationID})
			if snapshot, err := waitingSnapshot(st, parsed.StationID); err == nil {
				if !deliverSnapshot(client, snapshot, snapshotSendTimeout) {
					_ = session.Close(4008, "slow consumer")
					return
				}
			} else {
				log.Printf("snapshot error: %v", err)
			}
		}
	})
}

const snapshotSendTimeout = 2 * time.Second

// deliverSnapshot waits for the client to drain its buffer instead of
// dropping the snapshot. A subscriber that cannot take the snapshot has no
// consistent base for the incremental events that follow, so the caller
// disconnects it rather than leave it on a stale view.
func deliverSnapshot(client *hub.Client, snapshot []byte, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case client.Send <- snapshot:
		return true
	case <-timer.C:
		return false
	}
}

func waitingSnapshot(st store.QueueStore, stationID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	entries, err := st.WaitingList(ctx, stationID)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(map[string]interface{}{
		"station_id": stationID,
		"entries":    entries,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventEnvelope{
		Type:      "waiting.snapshot",
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
}

// runOutboxPoller tails the outbox and fans events out through the hub.
// Outbox rows are deleted only once both the realtime and the notifier
// consumers have moved past them.
func runOutboxPoller(st store.QueueStore, h *hub.Hub, cfg config.Config) {
	interval := cfg.OutboxPollInterval
	if interval <= 0 {
		interval = time.Second
	}
	notifierEnabled := cfg.NotifInterval > 0

	offset, err := st.GetOffset(context.Background(), realtimeConsumer)
	if err != nil {
		log.Printf("load offset error: %v", err)
	}

	var running int32
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if !atomic.CompareAndSwapInt32(&running, 0, 1) {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		events, err := st.ListOutboxEvents(ctx, offset, cfg.OutboxBatchSize)
		cancel()
		if err != nil {
			log.Printf("list outbox error: %v", err)
			atomic.StoreInt32(&running, 0)
			continue
		}

		for _, event := range events {
			offset.LastEventTime = event.CreatedAt
			offset.LastEventID = event.EventID
			envelope, err := json.Marshal(eventEnvelope{
				Type:      event.Type,
				Payload:   event.Payload,
				CreatedAt: event.CreatedAt,
			})
			if err != nil {
				continue
			}
			h.Broadcast(envelope, hub.Subscription{StationID: event.StationID})
		}

		if len(events) > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := st.UpdateOffset(ctx, realtimeConsumer, offset); err != nil {
				log.Printf("update offset error: %v", err)
			}
			var notifOffset store.OutboxOffset
			offsetsHealthy := true
			if notifierEnabled {
				notifOffset, err = st.GetOffset(ctx, worker.Consumer)
				if err != nil {
					log.Printf("notifier offset error: %v", err)
					offsetsHealthy = false
				}
			}
			if offsetsHealthy {
				if cutoff, ok := outboxCleanupCutoff(offset, notifOffset, notifierEnabled); ok {
					if err := st.CleanupOutbox(ctx, cutoff); err != nil {
						log.Printf("cleanup outbox error: %v", err)
					}
				}
			}
			cancel()
		}
		atomic.StoreInt32(&running, 0)
	}
}

// outboxCleanupCutoff picks the delete-before watermark for outbox rows.
// Rows survive until every active consumer has moved past them; when the
// notifier is disabled its offset never advances, so it must not hold the
// watermark back.
func outboxCleanupCutoff(realtime, notifier store.OutboxOffset, notifierEnabled bool) (time.Time, bool) {
	if realtime.LastEventTime.IsZero() {
		return time.Time{}, false
	}
	if !notifierEnabled {
		return realtime.LastEventTime, true
	}
	if notifier.LastEventTime.IsZero() {
		return time.Time{}, false
	}
	if notifier.LastEventTime.Before(realtime.LastEventTime) {
		return notifier.LastEventTime, true
	}
	return realtime.LastEventTime, true
}

func sessionToken(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	fields := strings.Fields(r.Header.Get("Authorization"))
	if len(fields) == 2 && strings.EqualFold(fields[0], "bearer") {
		return fields[1]
	}
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
}
