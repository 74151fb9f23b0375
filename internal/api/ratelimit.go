package api

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// companyRateLimiter hands each company its own token bucket, guarding the
// deploy endpoint against oversized-file abuse per SPEC_FULL.md §2.2's
// golang.org/x/time/rate wiring note.
type companyRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

func newCompanyRateLimiter(perSecond float64, burst int) *companyRateLimiter {
	return &companyRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(perSecond),
		burst:    burst,
	}
}

func (c *companyRateLimiter) allow(company string) bool {
	c.mu.Lock()
	l, ok := c.limiters[company]
	if !ok {
		l = rate.NewLimiter(c.r, c.burst)
		c.limiters[company] = l
	}
	c.mu.Unlock()
	return l.Allow()
}

// rateLimitDeploy wraps h, rejecting requests once a company exceeds its
// deploy-endpoint budget. The company is read from the X-Company-ID header
// since deploy requests precede any procdef lookup that would otherwise
// supply it.
func (s *Server) rateLimitDeploy(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		company := r.Header.Get("X-Company-ID")
		if company == "" {
			company = "default"
		}
		if !s.limiter.allow(company) {
			writeError(w, "deploy rate limit exceeded for this company", http.StatusTooManyRequests)
			return
		}
		h(w, r)
	}
}
