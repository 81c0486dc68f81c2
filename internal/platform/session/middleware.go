package session

import (
	"context"
	"net/http"
)

type contextKey struct{}

// Middleware loads the visitor session before the handler runs and persists
// it afterwards when it changed. Handlers obtain the session via FromContext.
func Middleware(manager *Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if manager == nil {
				next.ServeHTTP(w, r)
				return
			}
			sess := manager.Load(r)
			ctx := WithSession(r.Context(), sess)

			// The cookie header must be written before the handler writes the
			// body, so saving is deferred through a wrapping writer.
			sw := &sessionWriter{ResponseWriter: w, manager: manager, sess: sess}
			next.ServeHTTP(sw, r.WithContext(ctx))
			sw.flushSession()
		})
	}
}

type sessionWriter struct {
	http.ResponseWriter
	manager *Manager
	sess    *Session
	saved   bool
}

func (w *sessionWriter) WriteHeader(status int) {
	w.flushSession()
	w.ResponseWriter.WriteHeader(status)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.flushSession()
	return w.ResponseWriter.Write(b)
}

func (w *sessionWriter) flushSession() {
	if w.saved {
		return
	}
	w.saved = true
	if w.sess != nil && w.sess.Dirty() {
		_ = w.manager.Save(w.ResponseWriter, w.sess)
	}
}

// WithSession stores the session on the context for downstream consumers.
func WithSession(ctx context.Context, sess *Session) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextKey{}, sess)
}

// FromContext retrieves the request session when present.
func FromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	sess, ok := ctx.Value(contextKey{}).(*Session)
	return sess, ok && sess != nil
}
