package pipeline

import (
	"context"
	"time"

	"github.com/hivemind-works/pagepipe/internal/extract"
	"github.com/hivemind-works/pagepipe/internal/fetch"
)

// Fetcher retrieves a URL on behalf of a worker. Implementations must
// honour the timeout and return the typed errors from the fetch package.
type Fetcher interface {
	Fetch(ctx context.Context, targetURL string, headers map[string]string, timeout time.Duration) (*fetch.Result, error)
}

// Extractor turns a fetched body into structured content
type Extractor interface {
	Extract(body []byte, pageURL string) *extract.Content
	Apply(body []byte, rules map[string]string) map[string]string
}

// Notifier receives fire-and-forget operational events. Implementations
// must never block or propagate failures back into the pipeline.
type Notifier interface {
	NotifyTaskExhausted(taskID, targetURL string, retries int, lastErr error)
	NotifyQualityDrop(averageScore, threshold float64, assessed int)
}
