package internal

import (
	"net/http"
	"sync"
	"time"

	"appshell/internal/auth"
	"appshell/internal/store"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// requestLogger logs one line per request with its chi route pattern.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, code: http.StatusOK}

			next.ServeHTTP(rw, r)

			fields := []zap.Field{
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("route", routePattern(r)),
				zap.Int("status", rw.code),
				zap.Duration("latency", time.Since(start)),
			}
			if rw.code >= http.StatusInternalServerError {
				logger.Error("request", fields...)
				return
			}
			logger.Info("request", fields...)
		})
	}
}

// withRLSSession pins a database connection scoped to the signed-in user
// for the rest of the request. It must run after the session gate.
func (s *Server) withRLSSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.rls || s.DB == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx, release, err := store.PinOwner(r.Context(), s.DB, auth.UserIDFromContext(r.Context()))
		if err != nil {
			s.Logger.Error("db acquire", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "database unavailable", "DB_UNAVAILABLE")
			return
		}
		defer release()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// profileMemo remembers which users already have an up-to-date profile row
// so the upsert runs once per user and email per process.
type profileMemo struct {
	seen sync.Map
}

func (m *profileMemo) key(u auth.User) string {
	return u.ID.String() + "|" + u.Email
}

// ensureProfile makes sure the signed-in user has a profiles row before any
// project referencing it is written.
func (s *Server) ensureProfile(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := auth.SessionFromContext(r.Context())
		if s.Profiles == nil || sess == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := s.profiles.key(sess.User)
		if _, ok := s.profiles.seen.Load(key); !ok {
			if err := s.Profiles.Ensure(r.Context(), sess.User.ID, sess.User.Email); err != nil {
				s.Logger.Error("ensure profile", zap.String("user", sess.User.ID.String()), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "profile sync failed", "PROFILE_SYNC_FAILED")
				return
			}
			s.profiles.seen.Store(key, struct{}{})
		}
		next.ServeHTTP(w, r)
	})
}
