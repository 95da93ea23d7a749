package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"caucion-rate-alerts/internal/market"
	"caucion-rate-alerts/internal/rates"
)

const (
	loginPath   = "/api/v1/Account/LoginApi"
	currentPath = "/api/v1/MarketData/Current"

	instrumentType = "CAUCIONES"
	settlement     = "INMEDIATA"
)

// tenorTickers maps each tenor to the broker's caución instrument ticker.
var tenorTickers = map[rates.Tenor]string{
	rates.TenorD1: "PESOS1",
	rates.TenorD2: "PESOS2",
	rates.TenorD3: "PESOS3",
	rates.TenorD7: "PESOS7",
}

// PPIOptions parameterise the broker client.
type PPIOptions struct {
	BaseURL    string
	PublicKey  string
	PrivateKey string
	Timeout    time.Duration
	UserAgent  string
	Tenors     []rates.Tenor
}

// PPI fetches caución quotes from the PPI market-data API. Login issues a
// short-lived bearer token that is cached and refreshed on expiry.
type PPI struct {
	opts    PPIOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string

	tokenMux sync.Mutex
	token    string
	tokenExp time.Time
}

// NewPPI constructs a broker client.
func NewPPI(opts PPIOptions, logger zerolog.Logger) *PPI {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://clientapi.portfoliopersonal.com"
	}

	if len(opts.Tenors) == 0 {
		opts.Tenors = []rates.Tenor{rates.TenorD1, rates.TenorD2, rates.TenorD3}
	}

	return &PPI{
		opts:    opts,
		logger:  logger.With().Str("component", "ppi_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Fetch retrieves one quote per configured tenor and assembles a snapshot.
// Tenors the broker does not quote right now are left absent. An empty
// snapshot is an error: the tick must not treat it as "no change".
func (p *PPI) Fetch(ctx context.Context) (rates.Snapshot, error) {
	token, err := p.getToken(ctx)
	if err != nil {
		return rates.Snapshot{}, err
	}

	quoted := make(map[rates.Tenor]decimal.Decimal, len(p.opts.Tenors))
	for _, tenor := range p.opts.Tenors {
		ticker, ok := tenorTickers[tenor]
		if !ok {
			return rates.Snapshot{}, fmt.Errorf("no ticker mapped for tenor %s", tenor)
		}

		rate, found, err := p.fetchCurrent(ctx, token, ticker)
		if err != nil {
			return rates.Snapshot{}, fmt.Errorf("fetch %s: %w", ticker, err)
		}
		if !found {
			p.logger.Debug().Str("ticker", ticker).Msg("tenor not quoted")
			continue
		}
		quoted[tenor] = rate
	}

	if len(quoted) == 0 {
		return rates.Snapshot{}, fmt.Errorf("%w: no tenor quoted", ErrMalformed)
	}

	return rates.NewSnapshot(time.Now().In(market.Location()), quoted), nil
}

type loginRequest struct {
	PublicKey  string `json:"authorizedClient"`
	PrivateKey string `json:"clientKey"`
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
	Expires     int64  `json:"expirationDate"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (p *PPI) getToken(ctx context.Context) (string, error) {
	p.tokenMux.Lock()
	defer p.tokenMux.Unlock()

	if p.token != "" && time.Now().Before(p.tokenExp) {
		return p.token, nil
	}

	if p.opts.PublicKey == "" || p.opts.PrivateKey == "" {
		return "", fmt.Errorf("%w: api keys not configured", ErrAuth)
	}

	body, err := json.Marshal(loginRequest{PublicKey: p.opts.PublicKey, PrivateKey: p.opts.PrivateKey})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+loginPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	p.setCommonHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", parseAPIError(resp.StatusCode, payload)
	}

	var login loginResponse
	if err := json.Unmarshal(payload, &login); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if login.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrMalformed)
	}

	ttl := login.ExpiresIn
	if ttl <= 0 {
		ttl = 15 * 60
	}

	p.token = login.AccessToken
	// Renew a minute early so a token never expires mid-tick.
	p.tokenExp = time.Now().Add(time.Duration(ttl)*time.Second - time.Minute)
	p.logger.Debug().Time("expires", p.tokenExp).Msg("broker token refreshed")

	return p.token, nil
}

type currentResponse struct {
	Ticker string   `json:"ticker"`
	Price  *float64 `json:"price"`
	Date   string   `json:"date"`
}

func (p *PPI) fetchCurrent(ctx context.Context, token, ticker string) (decimal.Decimal, bool, error) {
	endpoint := fmt.Sprintf("%s%s?ticker=%s&type=%s&settlement=%s",
		p.baseURL, currentPath, ticker, instrumentType, settlement)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	p.setCommonHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, false, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return decimal.Decimal{}, false, nil
	case resp.StatusCode == http.StatusUnauthorized:
		// Token invalidated server-side; drop the cache so the next tick
		// logs in again.
		p.tokenMux.Lock()
		p.token = ""
		p.tokenMux.Unlock()
		return decimal.Decimal{}, false, fmt.Errorf("%w: token rejected", ErrAuth)
	case resp.StatusCode != http.StatusOK:
		return decimal.Decimal{}, false, parseAPIError(resp.StatusCode, payload)
	}

	var current currentResponse
	if err := json.Unmarshal(payload, &current); err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if current.Price == nil {
		return decimal.Decimal{}, false, nil
	}

	rate := decimal.NewFromFloat(*current.Price)
	if rate.IsZero() {
		return decimal.Decimal{}, false, nil
	}

	return rate, true, nil
}

func (p *PPI) setCommonHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(p.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "caucionwatcher/1.0")
	}
	req.Header.Set("AuthorizedClient", p.opts.PublicKey)
}

type apiError struct {
	Message     string `json:"message"`
	Description string `json:"description"`
	Error       string `json:"error"`
}

func parseAPIError(status int, payload []byte) error {
	var apiErr apiError
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("ppi api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.Description != "" {
			return fmt.Errorf("ppi api error (%d): %s", status, apiErr.Description)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("ppi api error (%d): %s", status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("ppi api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("ppi api error (%d)", status)
}

var _ Source = (*PPI)(nil)
