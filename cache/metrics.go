package cache

import (
	"github.com/saiset-co/sai-food-admin/types"
)

func (c *QueryCache) countQuery(result string) {
	if c.metrics == nil {
		return
	}
	c.metrics.Counter("cache_queries_total", map[string]string{"result": result}).Inc()
}

func (c *QueryCache) countFetch(status string) {
	if c.metrics == nil {
		return
	}
	c.metrics.Counter("cache_fetches_total", map[string]string{"status": status}).Inc()
}

func (c *QueryCache) countInvalidation(tag types.Tag) {
	if c.metrics == nil {
		return
	}
	c.metrics.Counter("cache_invalidations_total", map[string]string{"tag": tag.String()}).Inc()
}

// updateEntriesGauge runs under c.mu.
func (c *QueryCache) updateEntriesGauge() {
	if c.metrics == nil {
		return
	}
	c.metrics.Gauge("cache_entries", nil).Set(float64(len(c.entries)))
}
