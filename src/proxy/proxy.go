package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"finboard/src/logger"
	"finboard/src/models"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// Error Taxonomy
// -----------------------------------------------------------------------------

const (
	CategoryMissingURL      = "MISSING_URL"
	CategoryInvalidURL      = "INVALID_URL"
	CategoryTooManyRequests = "TOO_MANY_REQUESTS"
	CategoryInternalError   = "INTERNAL_SERVER_ERROR"
	CategoryBadRequest      = "BAD_REQUEST"
	CategoryParsingError    = "PARSING_ERROR"
	CategoryNetworkError    = "NETWORK_ERROR"
	CategoryTimeout         = "TIMEOUT"
	CategoryUnknown         = "UNKNOWN"
)

// MProxyError is the structured error object returned to callers.
type MProxyError struct {
	Error      string `json:"error"`
	Category   string `json:"category"`
	StatusCode int    `json:"statusCode"`
	RetryAfter string `json:"retryAfter,omitempty"`
}

// -----------------------------------------------------------------------------
// Handler
// -----------------------------------------------------------------------------

// Handler forwards GET requests to upstream data APIs on behalf of dashboard
// clients, so API keys stay in headers the browser never exposes cross-origin.
// Upstream failures map onto a fixed category taxonomy that callers use for
// backoff pacing.
type Handler struct {
	Logger *logger.Logger

	client       *http.Client
	timeout      time.Duration
	maxBodyBytes int64
	limiter      *clientLimiter
}

// -----------------------------------------------------------------------------

func NewHandler(cfg models.MProxyConfig, log *logger.Logger) *Handler {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second

	return &Handler{
		Logger:       log,
		client:       &http.Client{Timeout: timeout},
		timeout:      timeout,
		maxBodyBytes: cfg.MaxBodyBytes,
		limiter:      newClientLimiter(cfg.RateLimitPerMinute),
	}
}

// -----------------------------------------------------------------------------

// Forward handles GET /api/proxy?url=...
func (h *Handler) Forward(c *gin.Context) {
	if !h.limiter.allow(c.ClientIP(), time.Now()) {
		c.Header("Retry-After", "60")
		c.JSON(http.StatusTooManyRequests, MProxyError{
			Error:      "too many requests from this client",
			Category:   CategoryTooManyRequests,
			StatusCode: http.StatusTooManyRequests,
			RetryAfter: "60",
		})
		return
	}

	rawURL := c.Query("url")
	if rawURL == "" {
		c.JSON(http.StatusBadRequest, MProxyError{
			Error:      "missing required 'url' query parameter",
			Category:   CategoryMissingURL,
			StatusCode: http.StatusBadRequest,
		})
		return
	}

	target, err := url.Parse(rawURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		c.JSON(http.StatusBadRequest, MProxyError{
			Error:      "'url' must be an absolute http(s) url",
			Category:   CategoryInvalidURL,
			StatusCode: http.StatusBadRequest,
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, MProxyError{
			Error:      "failed to build upstream request: " + err.Error(),
			Category:   CategoryInternalError,
			StatusCode: http.StatusInternalServerError,
		})
		return
	}

	// Credential headers pass through untouched; everything else is dropped.
	if auth := c.GetHeader("Authorization"); auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if key := c.GetHeader("X-Api-Key"); key != "" {
		req.Header.Set("X-Api-Key", key)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		h.writeTransportError(c, target.Host, err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadGateway, MProxyError{
			Error:      "failed reading upstream response: " + err.Error(),
			Category:   CategoryNetworkError,
			StatusCode: http.StatusBadGateway,
		})
		return
	}

	h.passThroughRateHeaders(c, resp)

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := resp.Header.Get("Retry-After")
		if retryAfter != "" {
			c.Header("Retry-After", retryAfter)
		}
		c.JSON(http.StatusTooManyRequests, MProxyError{
			Error:      "upstream rate limit exceeded",
			Category:   CategoryTooManyRequests,
			StatusCode: http.StatusTooManyRequests,
			RetryAfter: retryAfter,
		})
		return
	}

	if resp.StatusCode >= 400 {
		category := CategoryUnknown
		switch {
		case resp.StatusCode >= 500:
			category = CategoryInternalError
		case resp.StatusCode >= 400:
			category = CategoryBadRequest
		}
		c.JSON(resp.StatusCode, MProxyError{
			Error:      "upstream returned status " + resp.Status,
			Category:   category,
			StatusCode: resp.StatusCode,
		})
		return
	}

	if !json.Valid(body) {
		c.JSON(http.StatusBadGateway, MProxyError{
			Error:      "upstream response is not valid JSON",
			Category:   CategoryParsingError,
			StatusCode: http.StatusBadGateway,
		})
		return
	}

	h.Logger.Debug("Proxied %s (%d bytes)", target.Host, len(body))
	c.Data(http.StatusOK, "application/json", body)
}

// -----------------------------------------------------------------------------

func (h *Handler) writeTransportError(c *gin.Context, host string, err error) {
	category := CategoryNetworkError
	status := http.StatusBadGateway

	var netErr interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) ||
		strings.Contains(err.Error(), "deadline exceeded") {
		category = CategoryTimeout
		status = http.StatusGatewayTimeout
	}

	h.Logger.Warning("Proxy request to %s failed: %v", host, err)
	c.JSON(status, MProxyError{
		Error:      "upstream request failed: " + err.Error(),
		Category:   category,
		StatusCode: status,
	})
}

// -----------------------------------------------------------------------------

// passThroughRateHeaders copies the upstream's rate-limit headers so callers
// can pace their own requests.
func (h *Handler) passThroughRateHeaders(c *gin.Context, resp *http.Response) {
	for _, header := range []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"} {
		if v := resp.Header.Get(header); v != "" {
			c.Header(header, v)
		}
	}
}

// -----------------------------------------------------------------------------
// Per-Client Rate Limiter
// -----------------------------------------------------------------------------

// clientLimiter counts requests per client IP over a sliding one-minute
// window. Zero or negative limit disables limiting.
type clientLimiter struct {
	mu       sync.Mutex
	limit    int
	requests map[string][]time.Time
}

// -----------------------------------------------------------------------------

func newClientLimiter(limit int) *clientLimiter {
	return &clientLimiter{
		limit:    limit,
		requests: make(map[string][]time.Time),
	}
}

// -----------------------------------------------------------------------------

func (cl *clientLimiter) allow(clientIP string, now time.Time) bool {
	if cl.limit <= 0 {
		return true
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	cutoff := now.Add(-time.Minute)
	recent := cl.requests[clientIP][:0]
	for _, t := range cl.requests[clientIP] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= cl.limit {
		cl.requests[clientIP] = recent
		return false
	}

	cl.requests[clientIP] = append(recent, now)
	return true
}
