// Package worker runs the model processing pipeline in the background.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jmylchreest/meshquote-api/internal/logging"
	"github.com/jmylchreest/meshquote-api/internal/models"
	"github.com/jmylchreest/meshquote-api/internal/queue"
)

// ErrInternal is recorded when processing panics.
var ErrInternal = errors.New("internal error during processing")

// errSuperseded is the cancellation cause used by Cancel.
var errSuperseded = errors.New("model superseded")

// finishTimeout bounds the write-back after analysis completed.
const finishTimeout = 10 * time.Second

// Pipeline is the processing state machine the worker drives.
type Pipeline interface {
	// Claim moves a queued model to processing, or returns nil.
	Claim(ctx context.Context, modelID string) (*models.Model, error)
	// ClaimNext claims the oldest queued model, or returns nil.
	ClaimNext(ctx context.Context) (*models.Model, error)
	Analyze(ctx context.Context, m *models.Model) (*models.ModelMetrics, error)
	// Finish records the outcome; procErr nil means success.
	Finish(ctx context.Context, m *models.Model, metrics *models.ModelMetrics, procErr error) error
	// Release returns a model interrupted by shutdown to the queue.
	Release(ctx context.Context, m *models.Model) error
}

// Worker processes queued models.
type Worker struct {
	pipeline     Pipeline
	queue        queue.Queue
	pollInterval time.Duration
	concurrency  int
	timeout      time.Duration
	grace        time.Duration

	wake     chan string
	stop     chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]*inflight

	logger *slog.Logger
}

type inflight struct {
	generation int64
	cancel     context.CancelCauseFunc
}

// Config holds worker configuration.
type Config struct {
	PollInterval time.Duration
	Concurrency  int
	// ProcessingTimeout bounds a single parse and analysis run.
	ProcessingTimeout time.Duration
	// ShutdownGracePeriod is how long Stop waits for in-flight models
	// before cancelling them.
	ShutdownGracePeriod time.Duration
}

// New creates a new worker. q may be nil, in which case queued models are
// only found by polling.
func New(pipeline Pipeline, q queue.Queue, cfg Config, logger *slog.Logger) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 2
	}
	if cfg.ProcessingTimeout == 0 {
		cfg.ProcessingTimeout = 2 * time.Minute
	}
	if cfg.ShutdownGracePeriod == 0 {
		cfg.ShutdownGracePeriod = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		pipeline:     pipeline,
		queue:        q,
		pollInterval: cfg.PollInterval,
		concurrency:  cfg.Concurrency,
		timeout:      cfg.ProcessingTimeout,
		grace:        cfg.ShutdownGracePeriod,
		wake:         make(chan string),
		stop:         make(chan struct{}),
		inflight:     make(map[string]*inflight),
		logger:       logger.With("component", "worker"),
	}
}

// Start begins processing models.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.logger.Info("starting",
		"concurrency", w.concurrency,
		"poll_interval", w.pollInterval.String(),
		"timeout", w.timeout.String(),
		"queue", w.queue != nil,
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.runWorker(ctx, i)
	}
	if w.queue != nil {
		w.wg.Add(1)
		go w.dispatch(ctx)
	}
}

// Stop stops taking new work and waits for in-flight models. Models still
// running after the grace period are cancelled and put back in the queue.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("stopping", "in_flight", w.InFlight())
		close(w.stop)

		done := make(chan struct{})
		go func() {
			w.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(w.grace):
			w.logger.Warn("grace period elapsed, cancelling in-flight processing", "in_flight", w.InFlight())
			if w.cancel != nil {
				w.cancel()
			}
			<-done
		}
		if w.cancel != nil {
			w.cancel()
		}
		w.logger.Info("stopped")
	})
}

// Cancel aborts processing of modelID if a run with a generation below
// `below` is in flight. The model's record is left to whoever superseded it.
func (w *Worker) Cancel(modelID string, below int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	run, ok := w.inflight[modelID]
	if !ok || run.generation >= below {
		return false
	}
	run.cancel(errSuperseded)
	return true
}

// InFlight returns the number of models being processed.
func (w *Worker) InFlight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inflight)
}

// Busy reports whether any model is being processed.
func (w *Worker) Busy() bool {
	return w.InFlight() > 0
}

// dispatch turns queue notifications into wake-ups for idle workers.
func (w *Worker) dispatch(ctx context.Context) {
	defer w.wg.Done()

	for {
		id, err := w.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			w.logger.Warn("failed to read queue", "error", err)
			select {
			case <-time.After(w.pollInterval):
				continue
			case <-w.stop:
				return
			case <-ctx.Done():
				return
			}
		}

		select {
		case w.wake <- id:
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) runWorker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.drain(ctx, workerID)

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case id := <-w.wake:
			m, err := w.pipeline.Claim(ctx, id)
			if err != nil {
				w.logger.Error("failed to claim model", "worker_id", workerID, "model_id", id, "error", err)
				continue
			}
			if m != nil {
				w.process(ctx, workerID, m)
			}
		case <-ticker.C:
			w.drain(ctx, workerID)
		}
	}
}

// drain processes queued models until none are left. It catches up on
// models whose wake-up was lost, e.g. across a restart.
func (w *Worker) drain(ctx context.Context, workerID int) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		m, err := w.pipeline.ClaimNext(ctx)
		if err != nil {
			w.logger.Error("failed to claim model", "worker_id", workerID, "error", err)
			return
		}
		if m == nil {
			return
		}
		w.process(ctx, workerID, m)
	}
}

func (w *Worker) process(ctx context.Context, workerID int, m *models.Model) {
	log := logging.FromContext(logging.WithModelID(logging.WithProjectID(ctx, m.ProjectID), m.ID), w.logger)
	log.Info("processing model", "worker_id", workerID, "generation", m.Generation, "format", m.Format)
	start := time.Now()

	runCtx, cancelRun := context.WithCancelCause(ctx)
	defer cancelRun(nil)
	w.register(m, cancelRun)
	defer w.unregister(m)

	timeoutCtx, cancelTimeout := context.WithTimeout(runCtx, w.timeout)
	defer cancelTimeout()

	metrics, procErr := w.analyze(timeoutCtx, m, log)

	switch {
	case errors.Is(context.Cause(runCtx), errSuperseded):
		log.Info("processing cancelled", "generation", m.Generation)
		return
	case ctx.Err() != nil:
		log.Warn("processing interrupted by shutdown", "generation", m.Generation)
		releaseCtx, cancelRelease := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
		defer cancelRelease()
		if err := w.pipeline.Release(releaseCtx, m); err != nil {
			log.Error("failed to release interrupted model", "error", err)
		}
		return
	case procErr != nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded):
		procErr = fmt.Errorf("processing timed out after %s", w.timeout)
	}

	finishCtx, cancelFinish := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancelFinish()
	if err := w.pipeline.Finish(finishCtx, m, metrics, procErr); err != nil {
		log.Error("failed to record processing outcome", "error", err)
		return
	}
	log.Debug("processing finished", "duration_ms", time.Since(start).Milliseconds(), "failed", procErr != nil)
}

// analyze runs the pipeline's analysis in its own goroutine so a parse that
// ignores ctx cannot hold the worker past the timeout. Panics are recovered
// and reported as ErrInternal.
func (w *Worker) analyze(ctx context.Context, m *models.Model, log *slog.Logger) (*models.ModelMetrics, error) {
	type outcome struct {
		metrics *models.ModelMetrics
		err     error
	}
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic during processing", "panic", r, "stack", string(debug.Stack()))
				ch <- outcome{err: ErrInternal}
			}
		}()
		metrics, err := w.pipeline.Analyze(ctx, m)
		ch <- outcome{metrics: metrics, err: err}
	}()

	select {
	case o := <-ch:
		return o.metrics, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *Worker) register(m *models.Model, cancel context.CancelCauseFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if prev, ok := w.inflight[m.ID]; ok && prev.generation < m.Generation {
		prev.cancel(errSuperseded)
	}
	w.inflight[m.ID] = &inflight{generation: m.Generation, cancel: cancel}
}

func (w *Worker) unregister(m *models.Model) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if run, ok := w.inflight[m.ID]; ok && run.generation == m.Generation {
		delete(w.inflight, m.ID)
	}
}
