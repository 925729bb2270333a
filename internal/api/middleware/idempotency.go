package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"

	"github.com/ayo6706/currency-converter/internal/api/problem"
	"github.com/ayo6706/currency-converter/internal/idempotency"
	"github.com/ayo6706/currency-converter/internal/observability"
	"go.uber.org/zap"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
)

// IdempotencyMiddleware makes mutating requests safe to retry. Keys are
// scoped to the authenticated user and the first response for a key is
// replayed for every retry with the same body, failed exchanges included, so
// a client never re-runs an exchange it cannot see the outcome of. A nil
// store disables the check.
func IdempotencyMiddleware(store *idempotency.Store, logger *zap.Logger) func(http.Handler) http.Handler {
	g := &idempotencyGuard{store: store, logger: logger}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			g.serve(w, r, next)
		})
	}
}

type idempotencyGuard struct {
	store  *idempotency.Store
	logger *zap.Logger
}

func (g *idempotencyGuard) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	rawKey := r.Header.Get(headerIdempotencyKey)
	if rawKey == "" {
		observability.IncrementIdempotencyEvent("missing_key")
		writeIdempotencyProblem(w, r, http.StatusBadRequest, "idempotency/missing-key", "Idempotency-Key header is required")
		return
	}

	body, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		writeIdempotencyProblem(w, r, http.StatusBadRequest, "request/invalid-body", "failed to read request body")
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	ctx := r.Context()
	key := scopedKey(UserIDFromContext(ctx), rawKey)
	hash := hashRequest(r.Method, r.URL.Path, body)

	rec, err := g.store.Lookup(ctx, key, hash)
	switch {
	case err == nil:
		observability.IncrementIdempotencyEvent("replay")
		replay(w, rec)
		return
	case errors.Is(err, idempotency.ErrHashMismatch):
		observability.IncrementIdempotencyEvent("hash_mismatch")
		writeIdempotencyProblem(w, r, http.StatusConflict, "idempotency/key-conflict", "idempotency key was used with a different request")
		return
	case errors.Is(err, idempotency.ErrInProgress):
		g.await(w, r, key, hash, "replay_after_wait")
		return
	case !errors.Is(err, idempotency.ErrNotFound):
		observability.IncrementIdempotencyEvent("lookup_error")
		g.logger.Warn("idempotency lookup failed", zap.Error(err))
	}

	reserved, err := g.store.Reserve(ctx, key, hash, r.Method, r.URL.Path)
	if err != nil {
		observability.IncrementIdempotencyEvent("reserve_error")
		g.logger.Error("idempotency reserve failed", zap.Error(err))
		writeIdempotencyProblem(w, r, http.StatusServiceUnavailable, "idempotency/unavailable", "idempotency store unavailable")
		return
	}
	if !reserved {
		g.await(w, r, key, hash, "replay_after_reserve")
		return
	}
	observability.IncrementIdempotencyEvent("reserved")

	recorder := &bodyRecorder{ResponseWriter: w}
	next.ServeHTTP(recorder, r)
	g.finalize(r, key, hash, recorder)
}

// await blocks until a concurrent request holding key finishes and replays
// its response.
func (g *idempotencyGuard) await(w http.ResponseWriter, r *http.Request, key, hash, outcome string) {
	rec, err := g.store.WaitForCompletion(r.Context(), key, hash)
	if err == nil {
		observability.IncrementIdempotencyEvent(outcome)
		replay(w, rec)
		return
	}
	observability.IncrementIdempotencyEvent("in_progress_conflict")
	g.logger.Warn("idempotency wait failed", zap.Error(err))
	writeIdempotencyProblem(w, r, http.StatusConflict, "idempotency/in-progress", "a request with this idempotency key is still running")
}

func (g *idempotencyGuard) finalize(r *http.Request, key, hash string, recorder *bodyRecorder) {
	status := recorder.status
	if status == 0 {
		status = http.StatusOK
	}
	contentType := recorder.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}

	if _, err := g.store.Finalize(r.Context(), key, hash, status, recorder.body.Bytes(), contentType); err != nil {
		observability.IncrementIdempotencyEvent("finalize_error")
		g.logger.Warn("idempotency finalize failed", zap.Error(err), zap.String("key", key))
		return
	}
	observability.IncrementIdempotencyEvent("finalized")
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func scopedKey(userID, key string) string {
	if userID == "" {
		return key
	}
	return userID + ":" + key
}

func hashRequest(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method + "|" + path + "|"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func writeIdempotencyProblem(w http.ResponseWriter, r *http.Request, status int, slug, detail string) {
	problem.Write(w, r, status, problem.Type(slug), http.StatusText(status), detail)
}

type bodyRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (br *bodyRecorder) WriteHeader(code int) {
	if br.status == 0 {
		br.status = code
	}
	br.ResponseWriter.WriteHeader(code)
}

func (br *bodyRecorder) Write(b []byte) (int, error) {
	if br.status == 0 {
		br.status = http.StatusOK
	}
	br.body.Write(b)
	return br.ResponseWriter.Write(b)
}

func replay(w http.ResponseWriter, rec *idempotency.Record) {
	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set(headerReplayed, "true")
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}
