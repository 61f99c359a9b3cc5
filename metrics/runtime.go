package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-food-admin/types"
)

// runtimeSampler copies Go runtime figures into gauges on a ticker.
type runtimeSampler struct {
	metrics   types.MetricsManager
	logger    types.Logger
	startTime time.Time
	wg        sync.WaitGroup
}

func newRuntimeSampler(metrics types.MetricsManager, logger types.Logger) *runtimeSampler {
	return &runtimeSampler{
		metrics:   metrics,
		logger:    logger,
		startTime: time.Now(),
	}
}

func (s *runtimeSampler) start(ctx context.Context, interval time.Duration) {
	s.wg.Add(1)
	go s.run(ctx, interval)
}

func (s *runtimeSampler) run(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.collect()

	for {
		select {
		case <-ticker.C:
			s.collect()
		case <-ctx.Done():
			s.logger.Debug("Runtime sampler stopped")
			return
		}
	}
}

func (s *runtimeSampler) wait() {
	s.wg.Wait()
}

func (s *runtimeSampler) collect() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	s.metrics.Gauge("runtime_goroutines", nil).Set(float64(runtime.NumGoroutine()))
	s.metrics.Gauge("runtime_memory_bytes", map[string]string{"type": "heap_inuse"}).Set(float64(m.HeapInuse))
	s.metrics.Gauge("runtime_memory_bytes", map[string]string{"type": "heap_alloc"}).Set(float64(m.HeapAlloc))
	s.metrics.Gauge("runtime_memory_bytes", map[string]string{"type": "sys"}).Set(float64(m.Sys))
	s.metrics.Gauge("runtime_gc_cycles", nil).Set(float64(m.NumGC))
	s.metrics.Gauge("runtime_uptime_seconds", nil).Set(time.Since(s.startTime).Seconds())

	s.logger.Debug("Runtime metrics sampled", zap.Int("goroutines", runtime.NumGoroutine()))
}
