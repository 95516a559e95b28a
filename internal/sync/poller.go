// Package sync drives periodic reconciliation of pending forms.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nhle/formpoll/internal/form"
	"github.com/nhle/formpoll/internal/model"
	"github.com/nhle/formpoll/internal/reconcile"
	"github.com/nhle/formpoll/internal/source"
)

const (
	// DefaultInterval is the tick period when none is configured.
	DefaultInterval = 60 * time.Second

	// DefaultConcurrency bounds parallel reconciliations when none is configured.
	DefaultConcurrency = 4
)

var (
	// ErrBatchRunning is returned by RunOnce while another batch is in flight.
	ErrBatchRunning = errors.New("batch already running")

	// ErrStarted is returned when Start is called more than once.
	ErrStarted = errors.New("poller already started")
)

// FormLister returns the forms awaiting a reply.
type FormLister interface {
	ListPending(ctx context.Context) ([]model.PendingForm, error)
}

// Reconciler checks one form.
type Reconciler interface {
	Reconcile(ctx context.Context, f model.PendingForm) (reconcile.Result, error)
}

// BatchResult counts the outcomes of one batch.
type BatchResult struct {
	Checked   int `json:"checked"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Defects   int `json:"defects"`
}

// Status is a snapshot of the poller's progress.
type Status struct {
	Running      bool          `json:"running"`
	LastRunAt    time.Time     `json:"last_run_at"`
	LastDuration time.Duration `json:"last_duration_ns"`
	LastBatch    BatchResult   `json:"last_batch"`
	LastError    string        `json:"last_error,omitempty"`

	Batches        uint64 `json:"batches"`
	SkippedTicks   uint64 `json:"skipped_ticks"`
	TotalCompleted uint64 `json:"total_completed"`
	TotalFailed    uint64 `json:"total_failed"`
	TotalDefects   uint64 `json:"total_defects"`
}

// Poller runs a reconciliation batch on every tick. Ticks that arrive while
// a batch is still running are skipped.
type Poller struct {
	forms       FormLister
	worker      Reconciler
	interval    time.Duration
	concurrency int
	logger      *slog.Logger

	busy      atomic.Bool
	triggerCh chan struct{}

	mu       gosync.Mutex
	status   Status
	started  bool
	stopOnce gosync.Once
	stopCh   chan struct{}
	cancel   context.CancelFunc
	inflight gosync.WaitGroup
	loopDone chan struct{}
}

// New creates a Poller. Non-positive interval or concurrency fall back to
// the defaults.
func New(
	forms FormLister,
	worker Reconciler,
	interval time.Duration,
	concurrency int,
	logger *slog.Logger,
) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		forms:       forms,
		worker:      worker,
		interval:    interval,
		concurrency: concurrency,
		logger:      logger,
		triggerCh:   make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		loopDone:    make(chan struct{}),
	}
}

// Start begins ticking in the background. The first batch runs
// immediately. Cancelling ctx stops the poller and cancels in-flight work.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrStarted
	}
	p.started = true

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	go p.loop(runCtx)
	return nil
}

// Stop stops issuing ticks and waits for the in-flight batch to drain. If
// ctx expires first, the batch's context is cancelled and ctx's error is
// returned. Stop on a poller that was never started is a no-op.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	started, cancel := p.started, p.cancel
	p.mu.Unlock()

	if !started {
		return nil
	}

	p.stopOnce.Do(func() { close(p.stopCh) })

	drained := make(chan struct{})
	go func() {
		<-p.loopDone
		p.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		cancel()
		p.logger.Info("poller stopped")
		return nil
	case <-ctx.Done():
		cancel()
		p.logger.Warn("poller stop deadline reached, cancelling in-flight batch")
		return ctx.Err()
	}
}

// Trigger requests an immediate batch. It never blocks; a request made
// while one is already queued is merged with it.
func (p *Poller) Trigger() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

// Status returns a snapshot of the poller's counters.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.status
	s.Running = p.busy.Load()
	return s
}

// RunOnce runs a single batch synchronously. It returns ErrBatchRunning if
// a batch is already in flight.
func (p *Poller) RunOnce(ctx context.Context) (BatchResult, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return BatchResult{}, ErrBatchRunning
	}
	defer p.busy.Store(false)

	return p.runBatch(ctx)
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.loopDone)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.tick(ctx)
		case <-p.triggerCh:
			p.tick(ctx)
		}
	}
}

// tick starts a batch in the background unless one is already running.
func (p *Poller) tick(ctx context.Context) {
	if !p.busy.CompareAndSwap(false, true) {
		p.mu.Lock()
		p.status.SkippedTicks++
		p.mu.Unlock()
		p.logger.Debug("previous batch still running, tick skipped")
		return
	}

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		defer p.busy.Store(false)

		if _, err := p.runBatch(ctx); err != nil {
			p.logger.Error("batch skipped", "error", err)
		}
	}()
}

func (p *Poller) runBatch(ctx context.Context) (BatchResult, error) {
	start := time.Now()

	forms, err := p.forms.ListPending(ctx)
	if err != nil {
		err = fmt.Errorf("listing pending forms: %w", err)
		p.record(start, BatchResult{}, err)
		return BatchResult{}, err
	}

	var (
		mu     gosync.Mutex
		result BatchResult
	)
	count := func(fn func(r *BatchResult)) {
		mu.Lock()
		fn(&result)
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for _, f := range forms {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := p.worker.Reconcile(ctx, f)
			count(func(r *BatchResult) {
				r.Checked++
				if res.Transitioned {
					r.Completed++
				}
			})
			if err != nil {
				p.logFailure(f, err, count)
			}
			return nil
		})
	}
	_ = g.Wait()

	p.record(start, result, nil)
	p.logger.Info("batch finished",
		"pending", len(forms),
		"checked", result.Checked,
		"completed", result.Completed,
		"failed", result.Failed,
		"defects", result.Defects,
		"duration", time.Since(start),
	)
	return result, nil
}

func (p *Poller) logFailure(f model.PendingForm, err error, count func(func(*BatchResult))) {
	if errors.Is(err, form.ErrNotPending) {
		count(func(r *BatchResult) { r.Defects++ })
		p.logger.Error("reconcile called on non-pending form",
			"token", f.Token, "status", f.Status, "defect", true, "error", err)
		return
	}

	count(func(r *BatchResult) { r.Failed++ })
	p.logger.Warn("reconcile failed",
		"token", f.Token,
		"sender", f.SenderEmail,
		"auth", source.IsAuthError(err),
		"error", err,
	)
}

func (p *Poller) record(start time.Time, result BatchResult, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.Batches++
	p.status.LastRunAt = start
	p.status.LastDuration = time.Since(start)
	p.status.LastBatch = result
	p.status.TotalCompleted += uint64(result.Completed)
	p.status.TotalFailed += uint64(result.Failed)
	p.status.TotalDefects += uint64(result.Defects)
	p.status.LastError = ""
	if err != nil {
		p.status.LastError = err.Error()
	}
}
