package fetch

import (
	"context"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Config holds the configuration for a fetch client
type Config struct {
	UserAgent      string        // User agent string for requests
	DefaultTimeout time.Duration // Timeout used when a fetch supplies none
	MaxConcurrency int           // Maximum number of concurrent requests
	RateLimit      int           // Maximum requests per second across all fetches
}

// DefaultConfig returns a Config instance with default values
func DefaultConfig() *Config {
	return &Config{
		UserAgent:      "PagePipe/1.0 (+https://github.com/hivemind-works/pagepipe)",
		DefaultTimeout: 30 * time.Second,
		MaxConcurrency: 10,
		RateLimit:      5,
	}
}

// Result holds the response of a single fetch
type Result struct {
	URL          string      `json:"url"`
	StatusCode   int         `json:"status_code"`
	Headers      http.Header `json:"headers,omitempty"`
	Body         []byte      `json:"-"`
	ContentType  string      `json:"content_type"`
	ResponseTime int64       `json:"response_time"` // milliseconds
}

// Client fetches URLs on behalf of pipeline workers. A base collector holds
// the shared transport settings; each fetch runs on a clone so per-task
// timeouts and headers never leak between requests.
type Client struct {
	config  *Config
	colly   *colly.Collector
	limiter *rate.Limiter
}

// New creates a fetch client from the given config
func New(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	c := colly.NewCollector(
		colly.UserAgent(config.UserAgent),
		colly.MaxDepth(1),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)

	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: config.MaxConcurrency,
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to apply collector limit rule")
	}

	c.WithTransport(&http.Transport{
		MaxIdleConnsPerHost: 25,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     120 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	})

	return &Client{
		config:  config,
		colly:   c,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateLimit),
	}
}

// GetUserAgent returns the configured user agent string.
func (c *Client) GetUserAgent() string {
	return c.config.UserAgent
}

// Fetch retrieves a URL with the given headers, honouring the timeout.
// It returns a typed error distinguishing timeout, network failure and
// non-2xx status; the Result is populated whenever a response arrived.
func (c *Client) Fetch(ctx context.Context, targetURL string, headers map[string]string, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		timeout = c.config.DefaultTimeout
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, classify(targetURL, err)
	}

	start := time.Now()
	result := &Result{URL: targetURL}

	clone := c.colly.Clone()
	clone.SetRequestTimeout(timeout)

	clone.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		for key, value := range headers {
			r.Headers.Set(key, value)
		}

		log.Debug().
			Str("url", r.URL.String()).
			Dur("timeout", timeout).
			Msg("Fetching URL")
	})

	var fetchErr error

	clone.OnResponse(func(r *colly.Response) {
		result.StatusCode = r.StatusCode
		result.Body = r.Body
		result.ContentType = r.Headers.Get("Content-Type")
		result.Headers = r.Headers.Clone()
		result.ResponseTime = time.Since(start).Milliseconds()
	})

	clone.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.StatusCode = r.StatusCode
			result.ResponseTime = time.Since(start).Milliseconds()
		}
		if r != nil && r.StatusCode >= 300 {
			fetchErr = &StatusError{URL: targetURL, StatusCode: r.StatusCode}
			return
		}
		fetchErr = classify(targetURL, err)
	})

	done := make(chan error, 1)
	go func() {
		if visitErr := clone.Visit(targetURL); visitErr != nil {
			done <- visitErr
			return
		}
		clone.Wait()
		done <- nil
	}()

	select {
	case visitErr := <-done:
		if fetchErr != nil {
			log.Debug().Err(fetchErr).Str("url", targetURL).Msg("Fetch failed")
			return result, fetchErr
		}
		if visitErr != nil {
			return result, classify(targetURL, visitErr)
		}
	case <-ctx.Done():
		return result, classify(targetURL, ctx.Err())
	}

	// Colly only routes non-2xx through OnError for >=300; guard anyway.
	if result.StatusCode < 200 || result.StatusCode >= 300 {
		return result, &StatusError{URL: targetURL, StatusCode: result.StatusCode}
	}

	log.Debug().
		Str("url", targetURL).
		Int("status_code", result.StatusCode).
		Int64("response_time_ms", result.ResponseTime).
		Msg("Fetch completed")

	return result, nil
}
