package razorpay

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"hotelbook/internal/adapters/observability"
	"hotelbook/internal/domain"
)

// Client talks to a Razorpay-compatible orders API. Transient failures are
// retried with jittered backoff and surface as domain.ErrGatewayUnavailable
// once retries are exhausted, so callers know the order is safe to retry.
type Client struct {
	base   string
	keyID  string
	secret string
	hc     *http.Client
	rl     *rate.Limiter
}

func New(base, keyID, secret string, rps int) (*Client, error) {
	if keyID == "" || secret == "" {
		return nil, fmt.Errorf("gateway key id and secret are required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		keyID:  keyID,
		secret: secret,
		hc:     &http.Client{Timeout: 20 * time.Second},
		rl:     rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// KeyID is the public key identifier the browser checkout needs.
func (c *Client) KeyID() string { return c.keyID }

// Secret exposes the shared secret for callback signature verification.
func (c *Client) Secret() string { return c.secret }

type orderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type orderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// CreateOrder registers a payment order for amount minor units. The receipt
// ties the order back to our booking id.
func (c *Client) CreateOrder(ctx context.Context, receipt string, amount int64, currency string) (domain.GatewayOrder, error) {
	if amount <= 0 {
		return domain.GatewayOrder{}, fmt.Errorf("%w: non-positive amount %d", domain.ErrInvalidRequest, amount)
	}
	body, err := json.Marshal(orderRequest{Amount: amount, Currency: currency, Receipt: receipt})
	if err != nil {
		return domain.GatewayOrder{}, err
	}

	var out orderResponse
	if err := c.post(ctx, c.base+"/v1/orders", body, &out); err != nil {
		return domain.GatewayOrder{}, err
	}
	if out.ID == "" {
		return domain.GatewayOrder{}, fmt.Errorf("%w: gateway returned no order id", domain.ErrGatewayUnavailable)
	}
	return domain.GatewayOrder{ID: out.ID, Amount: out.Amount, Currency: out.Currency}, nil
}

// post performs a POST with client-side rate limiting and retries on 429 and
// transient 5xx, honoring Retry-After when provided.
func (c *Client) post(ctx context.Context, url string, body []byte, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.SetBasicAuth(c.keyID, c.secret)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "hotelbook/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			observability.ObserveGateway("orders", 0, time.Since(start))
			lastErr = fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveGateway("orders", resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("%w: remote %d", domain.ErrGatewayUnavailable, resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			// 4xx other than 429 is not retryable: bad credentials or a
			// malformed order. Read a small error body for diagnostics.
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns an exponential backoff delay with concurrency-safe jitter.
// i = retry attempt (0,1,2,...). Base doubles each attempt (200ms, 400ms, 800ms...),
// with up to +50% random jitter to avoid thundering herds.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
