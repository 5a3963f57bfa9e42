package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"qms/cashier-service/internal/models"
	"qms/cashier-service/internal/store"
)

type authContextKey struct{}

type authInfo struct {
	Session store.Session
	User    models.User
}

func AuthMiddleware(st store.QueueStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		sessionID := sessionIDFromRequest(r)
		if sessionID == "" {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		session, user, err := st.GetSession(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "invalid session")
				return
			}
			writeError(w, requestIDFromRequest(r), http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, authInfo{Session: session, User: user})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) (models.User, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return models.User{}, false
	}
	info, ok := value.(authInfo)
	if !ok {
		return models.User{}, false
	}
	return info.User, true
}

// requireApproved gates counter and queue mutations: pending accounts may
// look but not touch.
func requireApproved(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
		return models.User{}, false
	}
	if !user.Approved() {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "account pending approval")
		return models.User{}, false
	}
	return user, true
}

func sessionIDFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics", "/api/auth/login":
		return true
	case "/api/queues":
		return r.Method == http.MethodPost
	case "/api/queues/waiting", "/api/stations", "/api/stations/summary":
		return r.Method == http.MethodGet
	default:
		if r.Method == http.MethodOptions {
			return true
		}
		// The sockjs endpoint authenticates inside the session handshake.
		if strings.HasPrefix(r.URL.Path, "/realtime/") {
			return true
		}
		// Customers track, audit, and cancel their own entry without a session.
		if strings.HasPrefix(r.URL.Path, "/api/queues/") {
			rest := strings.TrimPrefix(r.URL.Path, "/api/queues/")
			parts := strings.Split(rest, "/")
			switch {
			case r.Method == http.MethodGet && len(parts) == 1:
				return parts[0] != "" && parts[0] != "waiting"
			case r.Method == http.MethodGet && len(parts) == 2 && parts[1] == "events":
				return true
			case r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "cancel":
				return true
			}
		}
		return false
	}
}
