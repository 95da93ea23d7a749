package fetcher

import (
	"context"
	"errors"

	"caucion-rate-alerts/internal/rates"
)

// Source yields the latest caución rate snapshot from the upstream broker.
type Source interface {
	Fetch(ctx context.Context) (rates.Snapshot, error)
}

var (
	// ErrAuth indicates the broker rejected the API credentials.
	ErrAuth = errors.New("fetcher: authentication failed")
	// ErrMalformed indicates the broker returned an unparseable payload.
	ErrMalformed = errors.New("fetcher: malformed response")
)
