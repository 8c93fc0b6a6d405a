package httpapi

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/campusmess/messhall/internal/app/core"
	"github.com/campusmess/messhall/internal/app/domain/user"
)

type ctxKey int

const (
	ctxRequestIDKey ctxKey = iota
	ctxPrincipalKey
	ctxCallerSlotKey
)

const requestIDHeader = "X-Request-ID"

// withPrincipal stores the authenticated caller for downstream handlers.
func withPrincipal(ctx context.Context, p user.Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey, p)
}

// principalFrom returns the caller set by authenticate.
func principalFrom(ctx context.Context) (user.Principal, bool) {
	p, ok := ctx.Value(ctxPrincipalKey).(user.Principal)
	return p, ok
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxRequestIDKey).(string)
	return id
}

// statusWriter remembers the status code for logging and auditing.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer cannot be hijacked")
	}
	w.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (w *statusWriter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// requestID propagates or assigns X-Request-ID.
func (h *handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxRequestIDKey, id)))
	})
}

// logRequests writes one line per request and feeds the audit log with
// mutating calls.
func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		var p user.Principal
		// authenticate runs deeper in the chain, so it reports the caller back
		// through this slot.
		ctx := context.WithValue(r.Context(), ctxCallerSlotKey, &p)
		next.ServeHTTP(sw, r.WithContext(ctx))

		fields := logrus.Fields{
			"request_id": requestIDFrom(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     sw.code(),
			"duration":   time.Since(start).String(),
		}
		if p.ID != "" {
			fields["user"] = p.ID
		}
		entry := h.log.WithFields(fields)
		switch {
		case sw.code() >= 500:
			entry.Error("request failed")
		case sw.code() >= 400:
			entry.Info("request rejected")
		default:
			entry.Debug("request served")
		}

		if p.ID != "" && r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodOptions {
			h.audit.record(auditEntry{
				Time:       start.UTC(),
				RequestID:  requestIDFrom(r.Context()),
				User:       p.ID,
				Role:       string(p.Role),
				FacilityID: p.FacilityID,
				MessID:     p.MessID,
				Path:       r.URL.Path,
				Method:     r.Method,
				Status:     sw.code(),
				RemoteAddr: clientIP(r),
				UserAgent:  r.UserAgent(),
			})
		}
	})
}

// recoverPanics turns a handler panic into a 500.
func (h *handler) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.log.WithField("request_id", requestIDFrom(r.Context())).WithField("panic", rec).Error("handler panic")
				writeStatus(w, http.StatusInternalServerError, codeInternal, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// cors answers preflight requests and decorates responses for allowed
// origins. "*" allows any origin.
func (h *handler) cors(next http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(h.origins))
	for _, o := range h.origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Expose-Headers", requestIDHeader)
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+requestIDHeader)
				w.Header().Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate requires a bearer token. Websocket upgrades may pass it as the
// access_token query parameter since browsers cannot set headers there.
func (h *handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			h.fail(w, r, core.Unauthorized("missing bearer token"))
			return
		}
		p, err := h.app.Identity.Tokens().Parse(raw)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if slot, ok := r.Context().Value(ctxCallerSlotKey).(*user.Principal); ok {
			*slot = p
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("access_token")
	}
	return ""
}
