package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"heroesprofile-filter/internal/config"
	"heroesprofile-filter/internal/constants"
	"heroesprofile-filter/internal/domain"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

const maxErrorBody = 512

type Client struct {
	client      *fasthttp.Client
	limiter     *rate.Limiter
	timeout     time.Duration
	rateLimitMu sync.RWMutex
	rateLimit   RateLimitInfo
}

type RateLimitInfo struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("API error: %d", e.StatusCode)
	}
	return fmt.Sprintf("API error: %d: %s", e.StatusCode, e.Body)
}

// StatusCode extracts the HTTP status from err, or 0 when err is not a
// StatusError.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

func NewClient(cfg *config.Settings) *Client {
	limit := rate.Inf
	if cfg.RequestRate > 0 {
		limit = rate.Limit(cfg.RequestRate)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = constants.ExternalAPITimeout
	}

	return &Client{
		client: &fasthttp.Client{
			MaxConnsPerHost:     1,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		limiter: rate.NewLimiter(limit, 1),
		timeout: timeout,
	}
}

func (c *Client) GetRateLimitInfo() RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

func (c *Client) updateRateLimit(resp *fasthttp.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	if limit := string(resp.Header.Peek("X-Ratelimit-Limit")); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			c.rateLimit.Limit = val
		}
	}
	if remaining := string(resp.Header.Peek("X-Ratelimit-Remaining")); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			c.rateLimit.Remaining = val
		}
	}
	c.rateLimit.UpdatedAt = time.Now()
}

// GetReplays fetches the replay ID listing of one category. The body is
// returned untouched.
func (c *Client) GetReplays(ctx context.Context, id domain.Identity, category domain.Category) ([]byte, error) {
	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)

	args.Add("mode", id.Mode)
	args.Add("region", id.Region)
	args.Add("game_type", category.Label())
	args.Add("battletag", id.BattleTag)
	args.Add("api_token", id.APIToken)

	return c.doRequest(ctx, id.BaseURL, constants.ReplayListingPath, args)
}

// GetReplayData fetches the detail document of a single replay. The API
// answers with an object keyed by the replay ID.
func (c *Client) GetReplayData(ctx context.Context, id domain.Identity, replayID string) ([]byte, error) {
	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)

	args.Add("mode", id.Mode)
	args.Add("api_token", id.APIToken)
	args.Add("replayID", replayID)

	return c.doRequest(ctx, id.BaseURL, constants.ReplayDetailPath, args)
}

func (c *Client) doRequest(ctx context.Context, baseURL, path string, args *fasthttp.Args) ([]byte, error) {
	if baseURL == "" {
		return nil, errors.New("base_url is not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(baseURL + path + "?" + string(args.QueryString()))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, err
	}

	c.updateRateLimit(resp)

	body := append([]byte(nil), resp.Body()...)
	if code := resp.StatusCode(); code < 200 || code > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &StatusError{StatusCode: code, Body: string(body)}
	}
	return body, nil
}
