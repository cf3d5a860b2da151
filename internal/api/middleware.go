package api

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// UserHeader carries the authenticated user id, set by the gateway in front
// of the simulator.
const UserHeader = "X-User-ID"

type userKey struct{}

func userFrom(ctx context.Context) uint64 {
	id, _ := ctx.Value(userKey{}).(uint64)
	return id
}

// withUser rejects requests without a valid user id and stores it in the context.
func (s *Server) withUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(UserHeader)
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			s.fail(w, http.StatusUnauthorized, "missing or invalid "+UserHeader+" header")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, id)))
	})
}

// maxIdleBuckets is how many user buckets may accumulate before full ones
// are swept.
const maxIdleBuckets = 1024

// userLimiter keeps one token bucket per user id. A bucket that has refilled
// completely behaves like a new one, so sweeping it loses nothing.
type userLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	now      func() time.Time
	limiters map[uint64]*rate.Limiter
}

func newUserLimiter(perSecond float64, burst int) *userLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &userLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
		limiters: make(map[uint64]*rate.Limiter),
	}
}

func (u *userLimiter) allow(userID uint64) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	now := u.now()
	l, ok := u.limiters[userID]
	if !ok {
		if len(u.limiters) >= maxIdleBuckets {
			u.sweep(now)
		}
		l = rate.NewLimiter(u.limit, u.burst)
		u.limiters[userID] = l
	}
	return l.AllowN(now, 1)
}

func (u *userLimiter) sweep(now time.Time) {
	for id, l := range u.limiters {
		if l.TokensAt(now) >= float64(u.burst) {
			delete(u.limiters, id)
		}
	}
}

func (u *userLimiter) size() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.limiters)
}

// limited answers 429 once a user exceeds the order rate. It must run inside
// withUser: buckets are keyed by the parsed user id.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(userFrom(r.Context())) {
			w.Header().Set("Retry-After", "1")
			s.fail(w, http.StatusTooManyRequests, "too many orders, slow down")
			return
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack hands the connection to the websocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("Handled request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("Handler panicked", zap.Any("panic", rec), zap.String("path", r.URL.Path))
				s.fail(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
