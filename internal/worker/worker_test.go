package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/meshquote-api/internal/models"
	"github.com/jmylchreest/meshquote-api/internal/queue"
)

// ========================================
// Fake pipeline
// ========================================

type finished struct {
	model   *models.Model
	metrics *models.ModelMetrics
	err     error
}

type fakePipeline struct {
	mu       sync.Mutex
	queued   []*models.Model
	analyze  func(ctx context.Context, m *models.Model) (*models.ModelMetrics, error)
	done     chan finished
	released chan *models.Model
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{
		done:     make(chan finished, 16),
		released: make(chan *models.Model, 16),
		analyze: func(context.Context, *models.Model) (*models.ModelMetrics, error) {
			return &models.ModelMetrics{Volume: 1, Polygons: 12}, nil
		},
	}
}

func (p *fakePipeline) add(id string) {
	p.addGeneration(id, 1)
}

func (p *fakePipeline) addGeneration(id string, generation int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queued = append(p.queued, &models.Model{ID: id, ProjectID: "p-" + id, Status: models.ModelStatusQueued, Generation: generation})
}

func (p *fakePipeline) take(match func(*models.Model) bool) *models.Model {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, m := range p.queued {
		if match(m) {
			p.queued = append(p.queued[:i], p.queued[i+1:]...)
			m.Status = models.ModelStatusProcessing
			return m
		}
	}
	return nil
}

func (p *fakePipeline) Claim(_ context.Context, id string) (*models.Model, error) {
	return p.take(func(m *models.Model) bool { return m.ID == id }), nil
}

func (p *fakePipeline) ClaimNext(context.Context) (*models.Model, error) {
	return p.take(func(*models.Model) bool { return true }), nil
}

func (p *fakePipeline) Analyze(ctx context.Context, m *models.Model) (*models.ModelMetrics, error) {
	return p.analyze(ctx, m)
}

func (p *fakePipeline) Finish(_ context.Context, m *models.Model, metrics *models.ModelMetrics, procErr error) error {
	p.done <- finished{model: m, metrics: metrics, err: procErr}
	return nil
}

func (p *fakePipeline) Release(_ context.Context, m *models.Model) error {
	p.released <- m
	return nil
}

func (p *fakePipeline) waitFinished(t *testing.T) finished {
	t.Helper()
	select {
	case f := <-p.done:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Finish")
		return finished{}
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// slowPoll keeps the poll ticker out of tests that exercise the queue.
const slowPoll = time.Hour

// ========================================
// New Worker Tests
// ========================================

func TestNew_Defaults(t *testing.T) {
	w := New(nil, nil, Config{}, nil)

	if w.pollInterval != 5*time.Second {
		t.Errorf("pollInterval = %v, want 5s (default)", w.pollInterval)
	}
	if w.concurrency != 2 {
		t.Errorf("concurrency = %d, want 2 (default)", w.concurrency)
	}
	if w.timeout != 2*time.Minute {
		t.Errorf("timeout = %v, want 2m (default)", w.timeout)
	}
	if w.logger == nil {
		t.Error("logger should be set to default")
	}
}

func TestNew_CustomConfig(t *testing.T) {
	w := New(nil, nil, Config{PollInterval: 10 * time.Second, Concurrency: 8, ProcessingTimeout: time.Second}, testLogger())

	if w.pollInterval != 10*time.Second || w.concurrency != 8 || w.timeout != time.Second {
		t.Errorf("worker = %v / %d / %v", w.pollInterval, w.concurrency, w.timeout)
	}
}

// ========================================
// Processing Tests
// ========================================

func TestWorker_ProcessesQueuedModel(t *testing.T) {
	p := newFakePipeline()
	q := queue.NewMemoryQueue(4)
	w := New(p, q, Config{PollInterval: slowPoll, Concurrency: 1}, testLogger())
	w.Start(context.Background())
	defer w.Stop()

	p.add("m1")
	if err := q.Push(context.Background(), "m1"); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	f := p.waitFinished(t)
	if f.model.ID != "m1" || f.err != nil || f.metrics == nil || f.metrics.Polygons != 12 {
		t.Errorf("Finish(%s, %+v, %v)", f.model.ID, f.metrics, f.err)
	}
}

func TestWorker_PollsWithoutQueue(t *testing.T) {
	p := newFakePipeline()
	w := New(p, nil, Config{PollInterval: 20 * time.Millisecond, Concurrency: 2}, testLogger())
	w.Start(context.Background())
	defer w.Stop()

	p.add("a")
	p.add("b")

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		seen[p.waitFinished(t).model.ID] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Errorf("processed %v, want a and b", seen)
	}
}

func TestWorker_StaleWakeUpIsIgnored(t *testing.T) {
	p := newFakePipeline()
	q := queue.NewMemoryQueue(4)
	w := New(p, q, Config{PollInterval: slowPoll, Concurrency: 1}, testLogger())
	w.Start(context.Background())
	defer w.Stop()

	_ = q.Push(context.Background(), "gone")
	p.add("m2")
	_ = q.Push(context.Background(), "m2")

	if f := p.waitFinished(t); f.model.ID != "m2" {
		t.Errorf("finished %s, want m2", f.model.ID)
	}
}

func TestWorker_AnalysisError(t *testing.T) {
	p := newFakePipeline()
	wantErr := errors.New("stl parse error: empty: no data")
	p.analyze = func(context.Context, *models.Model) (*models.ModelMetrics, error) { return nil, wantErr }

	w := New(p, nil, Config{PollInterval: 10 * time.Millisecond, Concurrency: 1}, testLogger())
	w.Start(context.Background())
	defer w.Stop()
	p.add("bad")

	if f := p.waitFinished(t); !errors.Is(f.err, wantErr) {
		t.Errorf("Finish err = %v, want %v", f.err, wantErr)
	}
}

func TestWorker_Timeout(t *testing.T) {
	p := newFakePipeline()
	release := make(chan struct{})
	defer close(release)
	p.analyze = func(context.Context, *models.Model) (*models.ModelMetrics, error) {
		<-release
		return nil, nil
	}

	w := New(p, nil, Config{PollInterval: 10 * time.Millisecond, Concurrency: 1, ProcessingTimeout: 50 * time.Millisecond}, testLogger())
	w.Start(context.Background())
	defer w.Stop()
	p.add("slow")

	f := p.waitFinished(t)
	if f.err == nil || !strings.Contains(f.err.Error(), "processing timed out after 50ms") {
		t.Errorf("Finish err = %v, want timeout", f.err)
	}
}

func TestWorker_PanicIsRecovered(t *testing.T) {
	p := newFakePipeline()
	p.analyze = func(context.Context, *models.Model) (*models.ModelMetrics, error) {
		panic("index out of range")
	}

	w := New(p, nil, Config{PollInterval: 10 * time.Millisecond, Concurrency: 1}, testLogger())
	w.Start(context.Background())
	defer w.Stop()
	p.add("boom")

	if f := p.waitFinished(t); !errors.Is(f.err, ErrInternal) {
		t.Errorf("Finish err = %v, want ErrInternal", f.err)
	}

	// The worker survives the panic and keeps processing.
	p.analyze = func(context.Context, *models.Model) (*models.ModelMetrics, error) {
		return &models.ModelMetrics{Volume: 2}, nil
	}
	p.add("next")
	if f := p.waitFinished(t); f.err != nil || f.model.ID != "next" {
		t.Errorf("Finish(%s, %v) after panic", f.model.ID, f.err)
	}
}

func TestWorker_Cancel(t *testing.T) {
	p := newFakePipeline()
	started := make(chan struct{})
	p.analyze = func(ctx context.Context, _ *models.Model) (*models.ModelMetrics, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	w := New(p, nil, Config{PollInterval: 10 * time.Millisecond, Concurrency: 1}, testLogger())
	w.Start(context.Background())
	defer w.Stop()

	if w.Cancel("unknown", 2) {
		t.Error("Cancel(unknown) = true, want false")
	}

	p.add("victim")
	<-started
	if !w.Busy() {
		t.Error("Busy() = false while processing")
	}
	if !w.Cancel("victim", 2) {
		t.Fatal("Cancel(victim) = false, want true")
	}

	select {
	case f := <-p.done:
		t.Errorf("Finish called for cancelled model: %v", f.err)
	case <-time.After(100 * time.Millisecond):
	}

	deadline := time.Now().Add(time.Second)
	for w.Busy() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if w.InFlight() != 0 {
		t.Errorf("InFlight() = %d after cancel, want 0", w.InFlight())
	}
}

func TestWorker_CancelKeepsCurrentGeneration(t *testing.T) {
	p := newFakePipeline()
	started := make(chan struct{})
	release := make(chan struct{})
	p.analyze = func(ctx context.Context, _ *models.Model) (*models.ModelMetrics, error) {
		close(started)
		select {
		case <-release:
			return &models.ModelMetrics{Volume: 1, Polygons: 12}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	w := New(p, nil, Config{PollInterval: 10 * time.Millisecond, Concurrency: 1}, testLogger())
	w.Start(context.Background())
	defer w.Stop()

	// The requeued generation 2 was claimed before the requeue cancelled
	// runs below it.
	p.addGeneration("m1", 2)
	<-started
	if w.Cancel("m1", 2) {
		t.Error("Cancel(m1, 2) = true, want false for the generation-2 run")
	}
	close(release)

	f := p.waitFinished(t)
	if f.model.ID != "m1" || f.model.Generation != 2 || f.err != nil {
		t.Errorf("Finish(%s, gen %d, %v), want m1 gen 2 success", f.model.ID, f.model.Generation, f.err)
	}
}

func TestWorker_StopCancelsAfterGrace(t *testing.T) {
	p := newFakePipeline()
	started := make(chan struct{})
	p.analyze = func(ctx context.Context, _ *models.Model) (*models.ModelMetrics, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	w := New(p, nil, Config{
		PollInterval:        10 * time.Millisecond,
		Concurrency:         1,
		ShutdownGracePeriod: 50 * time.Millisecond,
	}, testLogger())
	w.Start(context.Background())
	p.add("long")
	<-started

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return after the grace period")
	}
	select {
	case f := <-p.done:
		t.Errorf("Finish called for interrupted model: %v", f.err)
	default:
	}
	select {
	case m := <-p.released:
		if m.ID != "long" {
			t.Errorf("released %s, want long", m.ID)
		}
	default:
		t.Error("interrupted model was not released back to the queue")
	}

	// Stop is idempotent.
	w.Stop()
}
