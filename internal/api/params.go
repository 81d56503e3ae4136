package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/agora/internal/urlnorm"
)

// originParam reads a path-escaped origin such as "dweb%3A%2F%2Falice" or a
// bare "alice" and canonicalizes it.
func originParam(r *http.Request, name string) (string, error) {
	raw, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil || raw == "" {
		return "", fmt.Errorf("invalid %s", name)
	}
	return urlnorm.CanonicalOrigin(raw), nil
}

// queryParams accumulates the first parse error so handlers can read every
// parameter and check once.
type queryParams struct {
	q   url.Values
	err error
}

func newQueryParams(r *http.Request) *queryParams {
	return &queryParams{q: r.URL.Query()}
}

func (p *queryParams) str(name string) string {
	return p.q.Get(name)
}

func (p *queryParams) integer(name string) int {
	raw := p.q.Get(name)
	if raw == "" || p.err != nil {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		p.err = fmt.Errorf("%s must be a non-negative integer", name)
		return 0
	}
	return n
}

func (p *queryParams) boolean(name string) bool {
	raw := p.q.Get(name)
	if raw == "" || p.err != nil {
		return false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.err = fmt.Errorf("%s must be a boolean", name)
		return false
	}
	return b
}

func (p *queryParams) timestamp(name string) time.Time {
	raw := p.q.Get(name)
	if raw == "" || p.err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		p.err = fmt.Errorf("%s must be an RFC 3339 timestamp", name)
		return time.Time{}
	}
	return t
}
