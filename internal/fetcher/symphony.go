package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"oracle-miss-alerts/internal/snapshot"
)

const (
	pathBondedValidators = "/cosmos/staking/v1beta1/validators"
	pathMissCounter      = "/symphony/oracle/v1beta1/validators/%s/miss"
	pathFeeder           = "/symphony/oracle/v1beta1/validators/%s/feeder"
	pathBalanceByDenom   = "/cosmos/bank/v1beta1/balances/%s/by_denom"
	pathExchangeRates    = "/symphony/oracle/v1beta1/denoms/exchange_rates"
)

// ErrNotFound marks a 404 from the chain API: the record is absent, not
// the transport broken.
var ErrNotFound = errors.New("record not found")

// Options parameterise the Symphony REST client.
type Options struct {
	BaseURL           string
	Denom             string
	Timeout           time.Duration
	MaxAttempts       int
	RetryBaseDelay    time.Duration
	RequestsPerSecond float64
	FetchWorkers      int
	PageLimit         int
	UserAgent         string
}

// Client fetches validator, oracle, and bank records from the Symphony
// REST API.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// NewClient constructs a Symphony REST client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 250 * time.Millisecond
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 8
	}
	if opts.FetchWorkers <= 0 {
		opts.FetchWorkers = 8
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = 200
	}
	if opts.Denom == "" {
		opts.Denom = snapshot.BaseDenom
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://rest.cosmos.directory/symphony"
	}

	burst := int(opts.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "symphony_fetcher").Logger(),
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst),
		baseURL: baseURL,
	}
}

// Fetch retrieves the bonded validator set and, per validator, the miss
// counter, feeder address, and feeder balance, plus the oracle exchange
// rates. A failed validator list aborts the fetch; per-validator lookup
// failures degrade to absent records, and a failed exchange-rate lookup
// degrades to an empty rate list.
func (c *Client) Fetch(ctx context.Context) (snapshot.Records, error) {
	validators, err := c.bondedValidators(ctx)
	if err != nil {
		return snapshot.Records{}, fmt.Errorf("fetch bonded validators: %w", err)
	}

	results := make([]validatorLookup, len(validators))
	sem := make(chan struct{}, c.opts.FetchWorkers)
	var wg sync.WaitGroup
	for i, val := range validators {
		wg.Add(1)
		go func(i int, addr string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = c.lookupValidator(ctx, addr)
		}(i, val.Address)
	}
	wg.Wait()

	rec := snapshot.Records{
		Validators: validators,
		Misses:     make(map[string]uint64, len(validators)),
		Feeders:    make(map[string]string, len(validators)),
		Balances:   make(map[string]decimal.Decimal, len(validators)),
	}
	for i, val := range validators {
		res := results[i]
		if res.missOK {
			rec.Misses[val.Address] = res.miss
		}
		if res.feeder != "" {
			rec.Feeders[val.Address] = res.feeder
			if res.balance != nil {
				rec.Balances[val.Address] = *res.balance
			}
		}
	}

	rates, err := c.exchangeRates(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("exchange rates unavailable, report section will be omitted")
	} else {
		rec.Rates = rates
	}

	return rec, nil
}

type validatorLookup struct {
	miss    uint64
	missOK  bool
	feeder  string
	balance *decimal.Decimal
}

// lookupValidator collects the per-validator records sequentially: the
// balance query depends on the feeder address. Failures degrade to absent
// per record kind.
func (c *Client) lookupValidator(ctx context.Context, addr string) validatorLookup {
	var res validatorLookup

	miss, err := c.missCounter(ctx, addr)
	if err != nil {
		c.logger.Warn().Err(err).Str("validator", addr).Msg("miss counter fetch failed")
	} else {
		res.miss = miss
		res.missOK = true
	}

	feeder, err := c.feederAddress(ctx, addr)
	if err != nil {
		c.logger.Warn().Err(err).Str("validator", addr).Msg("feeder lookup failed, treating as absent")
		return res
	}
	res.feeder = feeder
	if feeder == "" {
		return res
	}

	balance, err := c.feederBalance(ctx, feeder)
	if err != nil {
		c.logger.Warn().Err(err).Str("validator", addr).Str("feeder", feeder).
			Msg("feeder balance fetch failed, treating as unknown")
		return res
	}
	res.balance = &balance
	return res
}

func (c *Client) bondedValidators(ctx context.Context) ([]snapshot.Validator, error) {
	var out []snapshot.Validator
	nextKey := ""
	for {
		query := url.Values{}
		query.Set("status", "BOND_STATUS_BONDED")
		query.Set("pagination.limit", strconv.Itoa(c.opts.PageLimit))
		if nextKey != "" {
			query.Set("pagination.key", nextKey)
		}

		var page validatorsResponse
		if err := c.getJSON(ctx, pathBondedValidators, query, &page); err != nil {
			return nil, err
		}

		for _, v := range page.Validators {
			power, err := decimal.NewFromString(v.Tokens)
			if err != nil {
				c.logger.Warn().Str("validator", v.OperatorAddress).Str("tokens", v.Tokens).
					Msg("unparseable token amount, assuming zero vote power")
				power = decimal.Zero
			}
			out = append(out, snapshot.Validator{
				Address:   v.OperatorAddress,
				Moniker:   v.Description.Moniker,
				VotePower: power,
			})
		}

		nextKey = page.Pagination.NextKey
		if nextKey == "" {
			break
		}
	}
	return out, nil
}

func (c *Client) missCounter(ctx context.Context, addr string) (uint64, error) {
	var res missResponse
	if err := c.getJSON(ctx, fmt.Sprintf(pathMissCounter, addr), nil, &res); err != nil {
		return 0, err
	}
	miss, err := strconv.ParseUint(res.MissCounter, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse miss counter %q: %w", res.MissCounter, err)
	}
	return miss, nil
}

// feederAddress returns "" when no feeder is configured.
func (c *Client) feederAddress(ctx context.Context, addr string) (string, error) {
	var res feederResponse
	if err := c.getJSON(ctx, fmt.Sprintf(pathFeeder, addr), nil, &res); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return res.FeederAddr, nil
}

func (c *Client) feederBalance(ctx context.Context, feeder string) (decimal.Decimal, error) {
	query := url.Values{}
	query.Set("denom", c.opts.Denom)

	var res balanceResponse
	if err := c.getJSON(ctx, fmt.Sprintf(pathBalanceByDenom, feeder), query, &res); err != nil {
		return decimal.Decimal{}, err
	}
	amount, err := decimal.NewFromString(res.Balance.Amount)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse balance %q: %w", res.Balance.Amount, err)
	}
	return amount, nil
}

func (c *Client) exchangeRates(ctx context.Context) ([]snapshot.ExchangeRate, error) {
	var res exchangeRatesResponse
	if err := c.getJSON(ctx, pathExchangeRates, nil, &res); err != nil {
		return nil, err
	}

	rates := make([]snapshot.ExchangeRate, 0, len(res.ExchangeRates))
	for _, r := range res.ExchangeRates {
		amount, err := decimal.NewFromString(r.Amount)
		if err != nil {
			c.logger.Warn().Str("denom", r.Denom).Str("amount", r.Amount).
				Msg("unparseable exchange rate, skipping")
			continue
		}
		rates = append(rates, snapshot.ExchangeRate{Denom: r.Denom, Rate: amount})
	}
	return rates, nil
}

// getJSON performs a rate-limited GET with bounded retry and exponential
// backoff. 404 maps to ErrNotFound; other 4xx fail immediately; 429, 5xx,
// and transport errors retry.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.opts.RetryBaseDelay * time.Duration(1<<(attempt-2))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		lastErr = c.getOnce(ctx, endpoint, out)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		c.logger.Debug().Err(lastErr).Str("path", path).Int("attempt", attempt).
			Msg("request failed, will retry")
	}
	return fmt.Errorf("after %d attempts: %w", c.opts.MaxAttempts, lastErr)
}

func (c *Client) getOnce(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	default:
		return &httpStatusError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type validatorsResponse struct {
	Validators []struct {
		OperatorAddress string `json:"operator_address"`
		Description     struct {
			Moniker string `json:"moniker"`
		} `json:"description"`
		Tokens string `json:"tokens"`
	} `json:"validators"`
	Pagination struct {
		NextKey string `json:"next_key"`
	} `json:"pagination"`
}

type missResponse struct {
	MissCounter string `json:"miss_counter"`
}

type feederResponse struct {
	FeederAddr string `json:"feeder_addr"`
}

type balanceResponse struct {
	Balance struct {
		Denom  string `json:"denom"`
		Amount string `json:"amount"`
	} `json:"balance"`
}

type exchangeRatesResponse struct {
	ExchangeRates []struct {
		Denom  string `json:"denom"`
		Amount string `json:"amount"`
	} `json:"exchange_rates"`
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("chain api error (%d)", e.status)
	}
	return fmt.Sprintf("chain api error (%d): %s", e.status, e.body)
}

func retryable(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return false
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.status == http.StatusTooManyRequests || statusErr.status >= 500
	}
	return true
}

var _ Source = (*Client)(nil)
