package controller

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/repository"
)

const (
	defaultLimit = 500
	maxLimit     = 5000
)

func parseListQuery(r *http.Request) (repository.ListQuery, error) {
	q := r.URL.Query()
	out := repository.ListQuery{DeviceID: q.Get("device_id"), Limit: defaultLimit}

	var err error
	if s := q.Get("from"); s != "" {
		out.From, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return repository.ListQuery{}, errors.New("invalid 'from' (expected RFC3339)")
		}
	}
	if s := q.Get("to"); s != "" {
		out.To, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return repository.ListQuery{}, errors.New("invalid 'to' (expected RFC3339)")
		}
	}
	if !out.From.IsZero() && !out.To.IsZero() && out.From.After(out.To) {
		return repository.ListQuery{}, errors.New("'from' must be <= 'to'")
	}

	if s := q.Get("limit"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil {
			return repository.ListQuery{}, errors.New("invalid 'limit' (expected integer)")
		}
		if n <= 0 {
			return repository.ListQuery{}, errors.New("'limit' must be > 0")
		}
		if n > maxLimit {
			return repository.ListQuery{}, fmt.Errorf("'limit' must be <= %d", maxLimit)
		}
		out.Limit = n
	}
	return out, nil
}
