package worker

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"

	"triage_server/core/agent"
	"triage_server/core/agent/trace"
	"triage_server/core/domain"
)

// =============================================================================
// go-pkgz/pool 기반 Telemetry Pool
// =============================================================================

var (
	_ trace.Sink               = (*Pool)(nil)
	_ agent.AnalyticsPublisher = (*Pool)(nil)
)

// PoolConfig holds telemetry pool configuration.
type PoolConfig struct {
	Workers        int           // 워커 수
	BatchSize      int           // 배치 처리 크기 (1 = 즉시 전달)
	WorkerChanSize int           // 워커 채널 버퍼 크기
	JobTimeout     time.Duration // 작업 타임아웃
	MaxRetries     int           // 최대 재시도
	RetryBackoff   time.Duration // 재시도 기본 대기
	RatePerSecond  int           // 초당 최대 제출 수
}

// DefaultPoolConfig returns default pool configuration. A larger BatchSize
// holds submissions until the batch fills or the pool is stopped.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Workers:        4,
		BatchSize:      1,
		WorkerChanSize: 100,
		JobTimeout:     10 * time.Second,
		MaxRetries:     3,
		RetryBackoff:   time.Second,
		RatePerSecond:  500,
	}
}

// Pool ships agent traces and analytics snapshots off the scoring path.
// Submissions never block the caller on the sink; failures are retried and
// then dropped with a log line.
type Pool struct {
	handler *Handler
	config  *PoolConfig

	pool *pool.WorkerGroup[*Message]

	ctx    context.Context
	cancel context.CancelFunc

	retryCtx    context.Context
	retryCancel context.CancelFunc

	metrics     *PoolMetrics
	rateLimiter *RateLimiter
	retries     sync.WaitGroup
	log         zerolog.Logger

	started bool
	mu      sync.Mutex
}

// PoolMetrics holds pool metrics.
type PoolMetrics struct {
	JobsProcessed  int64
	JobsFailed     int64
	JobsDropped    int64
	JobsRetried    int64
	AvgProcessTime int64 // milliseconds
	QueueSize      int32
}

// messageWorker implements pool.Worker interface for Message processing.
type messageWorker struct {
	pool *Pool
}

// Do implements pool.Worker interface.
func (w *messageWorker) Do(ctx context.Context, msg *Message) error {
	return w.pool.processJob(ctx, msg)
}

func NewPool(handler *Handler, config *PoolConfig, log zerolog.Logger) *Pool {
	if config == nil {
		config = DefaultPoolConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	retryCtx, retryCancel := context.WithCancel(ctx)
	return &Pool{
		handler:     handler,
		config:      config,
		ctx:         ctx,
		cancel:      cancel,
		retryCtx:    retryCtx,
		retryCancel: retryCancel,
		metrics:     &PoolMetrics{},
		rateLimiter: NewRateLimiter(config.RatePerSecond, time.Second),
		log:         log.With().Str("component", "telemetry_pool").Logger(),
	}
}

// Start starts the worker pool.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}

	p.pool = pool.New[*Message](max(p.config.Workers, 1), &messageWorker{pool: p}).
		WithBatchSize(max(p.config.BatchSize, 1)).
		WithWorkerChanSize(max(p.config.WorkerChanSize, 1)).
		WithContinueOnError()

	if err := p.pool.Go(p.ctx); err != nil {
		p.log.Error().Err(err).Msg("failed to start telemetry pool")
		return err
	}
	p.started = true

	go p.metricsReporter()

	p.log.Info().
		Int("workers", p.config.Workers).
		Int("batch_size", p.config.BatchSize).
		Msg("telemetry pool started")
	return nil
}

// Stop drains queued jobs and stops the pool.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	p.retryCancel()
	p.retries.Wait()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer closeCancel()
	if err := p.pool.Close(closeCtx); err != nil {
		p.log.Warn().Err(err).Msg("error closing telemetry pool")
	}
	p.cancel()

	p.log.Info().
		Int64("processed", atomic.LoadInt64(&p.metrics.JobsProcessed)).
		Int64("failed", atomic.LoadInt64(&p.metrics.JobsFailed)).
		Msg("telemetry pool stopped")
}

// Submit submits a job to the pool. It reports false when the pool is not
// running or the rate limit is exceeded. Submissions are serialized because
// the worker group's Submit is not safe for concurrent use.
func (p *Pool) Submit(msg *Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return false
	}

	if !p.rateLimiter.Allow() {
		atomic.AddInt64(&p.metrics.JobsDropped, 1)
		p.log.Warn().
			Str("job_id", msg.ID).
			Str("job_type", msg.Type).
			Msg("job dropped due to rate limiting")
		return false
	}

	p.pool.Submit(msg)
	atomic.AddInt32(&p.metrics.QueueSize, 1)
	return true
}

// Enqueue queues a trace for shipping.
func (p *Pool) Enqueue(userID string, tr domain.AgentTrace) {
	p.enqueue(JobTraceShip, userID, TracePayload{Trace: tr})
}

// EnqueueAnalytics queues an analytics snapshot for shipping.
func (p *Pool) EnqueueAnalytics(userID string, data domain.AnalyticsData) {
	p.enqueue(JobAnalyticsShip, userID, AnalyticsPayload{Analytics: data})
}

func (p *Pool) enqueue(jobType JobType, userID string, payload any) {
	msg, err := NewMessage(jobType, userID, payload)
	if err != nil {
		p.log.Error().Err(err).Str("job_type", jobType).Msg("failed to encode job")
		return
	}
	p.Submit(msg)
}

// processJob processes a single job with timeout.
func (p *Pool) processJob(ctx context.Context, msg *Message) error {
	start := time.Now()
	defer atomic.AddInt32(&p.metrics.QueueSize, -1)

	jobCtx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	defer cancel()

	err := p.handler.Process(jobCtx, msg)
	p.updateAvgProcessTime(time.Since(start).Milliseconds())

	if err == nil {
		atomic.AddInt64(&p.metrics.JobsProcessed, 1)
		return nil
	}

	p.log.Warn().
		Err(err).
		Str("job_id", msg.ID).
		Str("job_type", msg.Type).
		Int("retries", msg.Retries).
		Msg("job processing failed")

	if msg.Retries >= p.config.MaxRetries {
		atomic.AddInt64(&p.metrics.JobsFailed, 1)
		p.log.Error().
			Str("job_id", msg.ID).
			Str("job_type", msg.Type).
			Str("user_id", msg.UserID).
			Msg("job dropped after max retries")
		return err
	}

	msg.Retries++
	atomic.AddInt64(&p.metrics.JobsRetried, 1)
	p.scheduleRetry(msg)
	return err
}

// scheduleRetry resubmits with exponential backoff plus jitter.
func (p *Pool) scheduleRetry(msg *Message) {
	backoff := p.config.RetryBackoff << (msg.Retries - 1)
	if p.config.RetryBackoff > 0 {
		backoff += rand.N(p.config.RetryBackoff/2 + 1)
	}

	p.retries.Add(1)
	go func() {
		defer p.retries.Done()

		timer := time.NewTimer(backoff)
		defer timer.Stop()
		select {
		case <-p.retryCtx.Done():
		case <-timer.C:
			p.Submit(msg)
		}
	}()
}

// updateAvgProcessTime updates the average processing time.
func (p *Pool) updateAvgProcessTime(elapsed int64) {
	current := atomic.LoadInt64(&p.metrics.AvgProcessTime)
	if current == 0 {
		atomic.StoreInt64(&p.metrics.AvgProcessTime, elapsed)
		return
	}
	atomic.StoreInt64(&p.metrics.AvgProcessTime, (current*9+elapsed)/10)
}

// metricsReporter periodically logs metrics.
func (p *Pool) metricsReporter() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			m := p.GetMetrics()
			p.log.Info().
				Int64("processed", m.JobsProcessed).
				Int64("failed", m.JobsFailed).
				Int64("dropped", m.JobsDropped).
				Int64("retried", m.JobsRetried).
				Int64("avg_process_ms", m.AvgProcessTime).
				Int32("queue_size", m.QueueSize).
				Msg("telemetry pool metrics")
		}
	}
}

// GetMetrics returns current pool metrics.
func (p *Pool) GetMetrics() PoolMetrics {
	return PoolMetrics{
		JobsProcessed:  atomic.LoadInt64(&p.metrics.JobsProcessed),
		JobsFailed:     atomic.LoadInt64(&p.metrics.JobsFailed),
		JobsDropped:    atomic.LoadInt64(&p.metrics.JobsDropped),
		JobsRetried:    atomic.LoadInt64(&p.metrics.JobsRetried),
		AvgProcessTime: atomic.LoadInt64(&p.metrics.AvgProcessTime),
		QueueSize:      atomic.LoadInt32(&p.metrics.QueueSize),
	}
}

// =============================================================================
// Rate Limiter
// =============================================================================

// RateLimiter implements lock-free token bucket rate limiting using atomic operations.
type RateLimiter struct {
	tokens       int64 // atomic
	maxTokens    int64 // atomic
	refillRate   int64 // atomic
	intervalNs   int64
	lastRefillNs int64 // atomic (UnixNano)
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(ratePerSecond int, interval time.Duration) *RateLimiter {
	tokens := int64(ratePerSecond)
	return &RateLimiter{
		tokens:       tokens,
		maxTokens:    tokens,
		refillRate:   tokens,
		intervalNs:   int64(interval),
		lastRefillNs: time.Now().UnixNano(),
	}
}

// Allow checks if a request is allowed using atomic operations (lock-free).
func (r *RateLimiter) Allow() bool {
	now := time.Now().UnixNano()
	lastRefill := atomic.LoadInt64(&r.lastRefillNs)

	if elapsed := now - lastRefill; elapsed >= r.intervalNs {
		tokensToAdd := (elapsed / r.intervalNs) * atomic.LoadInt64(&r.refillRate)
		maxTokens := atomic.LoadInt64(&r.maxTokens)

		if atomic.CompareAndSwapInt64(&r.lastRefillNs, lastRefill, now) {
			for {
				current := atomic.LoadInt64(&r.tokens)
				next := min(current+tokensToAdd, maxTokens)
				if atomic.CompareAndSwapInt64(&r.tokens, current, next) {
					break
				}
			}
		}
	}

	for {
		current := atomic.LoadInt64(&r.tokens)
		if current <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&r.tokens, current, current-1) {
			return true
		}
	}
}

// SetRate updates the rate limit atomically.
func (r *RateLimiter) SetRate(ratePerSecond int) {
	atomic.StoreInt64(&r.maxTokens, int64(ratePerSecond))
	atomic.StoreInt64(&r.refillRate, int64(ratePerSecond))
}
