package locations

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/llm"
	"github.com/akolanti/ChatAnalyzer/internal/locations/geocoding"
	"github.com/akolanti/ChatAnalyzer/internal/metrics"
	"github.com/akolanti/ChatAnalyzer/internal/pacing"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
)

// geocodeQueue resolves queries on its own goroutine while extraction keeps
// calling the model. It has its own pacing, separate from the LLM's. Each
// normalized query is looked up once per run.
type geocodeQueue struct {
	geocoder geocoding.Geocoder
	pacer    *pacing.Controller
	retries  int
	logger   *logger_i.Logger

	jobs chan geocodeJob
	done chan struct{}

	mu       sync.Mutex
	queued   map[string]bool
	resolved map[string]geocoding.Result
	notFound int
	failed   int
	stopped  atomic.Bool
}

type geocodeJob struct {
	key   string
	query string
}

func startGeocoding(ctx context.Context, g geocoding.Geocoder, pacer *pacing.Controller, retries int, logger *logger_i.Logger) *geocodeQueue {
	q := &geocodeQueue{
		geocoder: g,
		pacer:    pacer,
		retries:  retries,
		logger:   logger.With("geocoder", g.Name()),
		jobs:     make(chan geocodeJob, config.GeocodingQueueSize),
		done:     make(chan struct{}),
		queued:   make(map[string]bool),
		resolved: make(map[string]geocoding.Result),
	}
	go q.run(ctx)
	return q
}

func (q *geocodeQueue) enqueue(key string, query string) {
	q.mu.Lock()
	if q.queued[key] {
		q.mu.Unlock()
		return
	}
	q.queued[key] = true
	q.mu.Unlock()
	q.jobs <- geocodeJob{key: key, query: query}
}

// finish waits for every queued lookup and returns the resolved ones by key.
func (q *geocodeQueue) finish() map[string]geocoding.Result {
	close(q.jobs)
	<-q.done
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.resolved
}

func (q *geocodeQueue) run(ctx context.Context) {
	defer close(q.done)
	//always drain so enqueue never blocks on a stopped worker
	for job := range q.jobs {
		if q.stopped.Load() || ctx.Err() != nil {
			continue
		}
		q.lookup(ctx, job)
	}
}

func (q *geocodeQueue) lookup(ctx context.Context, job geocodeJob) {
	name := q.geocoder.Name()
	for attempt := 0; ; attempt++ {
		if _, err := q.pacer.Wait(ctx, 0); err != nil {
			return
		}
		start := time.Now()
		res, err := q.geocoder.Geocode(ctx, job.query)
		if err == nil {
			q.pacer.OnSuccess(0)
			metrics.CaptureGeocodingCall(name, "resolved")
			metrics.CaptureExecutionMetrics("geocode_"+name, time.Since(start))
			q.mu.Lock()
			q.resolved[job.key] = res
			q.mu.Unlock()
			return
		}
		if errors.Is(err, geocoding.ErrNotFound) {
			q.pacer.OnSuccess(0)
			metrics.CaptureGeocodingCall(name, "not_found")
			q.mu.Lock()
			q.notFound++
			q.mu.Unlock()
			q.logger.Debug("no match", "query", job.query)
			return
		}

		callErr := llm.Classify(err)
		metrics.CaptureGeocodingCall(name, string(callErr.Class))
		if callErr.Class == llm.RateLimited {
			delay := q.pacer.OnRateLimited(callErr.RetryAfter, 0)
			q.logger.Warn("geocoder rate limited", "delay", delay)
		}
		if callErr.Aborts() {
			q.logger.Error("geocoder rejected credentials, skipping remaining lookups", "error", err)
			q.stopped.Store(true)
		}
		if !callErr.Retryable() || attempt >= q.retries || ctx.Err() != nil {
			q.logger.Warn("lookup failed", "query", job.query, "attempts", attempt+1, "error", err)
			q.mu.Lock()
			q.failed++
			q.mu.Unlock()
			return
		}
	}
}
