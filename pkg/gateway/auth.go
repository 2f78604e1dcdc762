package gateway

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	cfg "github.com/papercomputeco/careline/pkg/config"
)

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid bearer token")
)

// authenticate validates an Authorization header and returns the subject used
// to key rate limits.
func (s *Server) authenticate(header string) (string, error) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return "", errMissingToken
	}

	if s.config.JWTSecret == "" {
		return token, nil
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return []byte(s.config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %w", errInvalidToken, err)
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return token, nil
	}
	return sub, nil
}

// limiter is a per-subject token bucket refilled over one minute.
type limiter struct {
	mu        sync.Mutex
	perMinute int
	buckets   map[string]*rate.Limiter
}

// newLimiter returns nil when perMinute is zero, which allows everything.
// Larger values are clamped to config.MaxRateLimit.
func newLimiter(perMinute uint) *limiter {
	if perMinute == 0 {
		return nil
	}
	perMinute = min(perMinute, cfg.MaxRateLimit)
	return &limiter{
		perMinute: int(perMinute),
		buckets:   make(map[string]*rate.Limiter),
	}
}

func (l *limiter) allow(subject string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	b, ok := l.buckets[subject]
	if !ok {
		b = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)
		l.buckets[subject] = b
	}
	l.mu.Unlock()

	return b.Allow()
}
