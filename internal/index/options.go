package index

import (
	"time"

	"github.com/google/uuid"

	"github.com/docloom/docloom/internal/config"
)

// defaultSearchTimeout bounds a vector search query.
const defaultSearchTimeout = 10 * time.Second

type searchConfig struct {
	topK      int
	filter    []uuid.UUID
	filterSet bool
	timeout   time.Duration
}

// SearchOption customizes a Search call.
type SearchOption func(*searchConfig)

// WithTopK sets the maximum number of results. Values outside
// [1, config.MaxTopK] are clamped.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k < 1 {
			k = 1
		}
		if k > config.MaxTopK {
			k = config.MaxTopK
		}
		c.topK = k
	}
}

// WithDocumentFilter restricts the search to the given documents. The
// filter is applied inside the SQL query, never after scoring, so results
// can only come from the listed documents. An empty list matches nothing.
func WithDocumentFilter(ids []uuid.UUID) SearchOption {
	return func(c *searchConfig) {
		c.filter = ids
		c.filterSet = true
	}
}

// WithSearchTimeout overrides the per-query timeout.
func WithSearchTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func buildSearchConfig(opts []SearchOption) searchConfig {
	cfg := searchConfig{
		topK:    config.DefaultTopK,
		timeout: defaultSearchTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
