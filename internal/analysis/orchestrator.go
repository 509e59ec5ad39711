package analysis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/baloghm/meterbill/constants"
	"github.com/baloghm/meterbill/internal/imageprep"
	"github.com/baloghm/meterbill/internal/llm"
)

// Orchestrator drives extraction for items through a bounded worker pool.
// Marking an item ANALYZING happens synchronously in Analyze, so a second
// call for the same item is a no-op before it can enqueue anything.
type Orchestrator struct {
	store     *Store
	extractor llm.ReadingExtractor
	prep      *imageprep.Processor
	logger    *slog.Logger
	workers   int
	timeout   time.Duration

	ch   chan job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type job struct {
	itemID    string
	meterHint string
}

type Option func(*Orchestrator)

func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.ch = make(chan job, n)
		}
	}
}

func WithItemTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func NewOrchestrator(store *Store, extractor llm.ReadingExtractor, prep *imageprep.Processor, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		store:     store,
		extractor: extractor,
		prep:      prep,
		logger:    logger,
		workers:   4,
		timeout:   3 * time.Minute,
		ch:        make(chan job, 256),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.start()
	return o
}

func (o *Orchestrator) start() {
	o.once.Do(func() {
		for i := 0; i < o.workers; i++ {
			o.wg.Add(1)
			go func(workerID int) {
				defer o.wg.Done()
				o.logger.Info("analysis worker started", "worker_id", workerID)
				for j := range o.ch {
					o.process(workerID, j)
				}
				o.logger.Info("analysis worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Analyze queues one item for extraction. Items already SUCCESS or ANALYZING
// are skipped; ERROR items re-enter the pipeline (user-triggered retry).
func (o *Orchestrator) Analyze(id string) bool {
	queued := false
	o.store.Update(id, func(it *Item) {
		if !it.Status.CanStartAnalysis() {
			return
		}
		it.Status = constants.ItemStatusAnalyzing
		it.ErrorMessage = ""
		queued = true
	})
	if !queued {
		return false
	}

	it, ok := o.store.Get(id)
	if !ok {
		return false
	}
	o.enqueue(job{itemID: id, meterHint: it.Assignment.MeterName})
	return true
}

// AnalyzeAll queues every item that is eligible and returns how many were queued.
func (o *Orchestrator) AnalyzeAll() int {
	n := 0
	for _, it := range o.store.List() {
		if o.Analyze(it.ID) {
			n++
		}
	}
	return n
}

func (o *Orchestrator) enqueue(j job) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		o.logger.Warn("cannot enqueue: orchestrator shutting down", "item_id", j.itemID)
		// roll the guard back so the item is not stuck in ANALYZING
		o.store.Update(j.itemID, func(it *Item) {
			if it.Status == constants.ItemStatusAnalyzing {
				it.Status = constants.ItemStatusIdle
			}
		})
		return
	}
	o.ch <- j
}

func (o *Orchestrator) process(workerID int, j job) {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	start := time.Now()
	it, ok := o.store.Get(j.itemID)
	if !ok {
		o.logger.Info("analysis.skip.removed", "worker_id", workerID, "item_id", j.itemID)
		return
	}

	payload, err := o.prep.Compress(it.ImageData)
	if err != nil {
		o.settleError(j.itemID, "The photo could not be decoded. Upload a JPEG or PNG.", err)
		return
	}

	raw, err := o.extractor.ExtractReadings(ctx, llm.ExtractRequest{
		ImageDataURL: payload.DataURL(),
		ImageMIME:    payload.MIME,
		MeterHint:    j.meterHint,
	})
	if err != nil {
		o.settleError(j.itemID, userMessageFor(err), err)
		return
	}

	res, err := Normalize(raw)
	if err != nil {
		o.settleError(j.itemID, llm.UserMessage(llm.CodeMalformedResponse), err)
		return
	}

	updated := o.store.Update(j.itemID, func(it *Item) {
		r := res
		it.Status = constants.ItemStatusSuccess
		it.Result = &r
		it.ErrorMessage = ""
	})
	if !updated {
		// item was removed while the request was in flight; result discarded
		o.logger.Info("analysis.settle.dropped", "worker_id", workerID, "item_id", j.itemID)
		return
	}
	o.logger.Info("analysis.settle.ok",
		"worker_id", workerID,
		"item_id", j.itemID,
		"usage", res.Usage,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
}

func (o *Orchestrator) settleError(id, message string, cause error) {
	updated := o.store.Update(id, func(it *Item) {
		it.Status = constants.ItemStatusError
		it.ErrorMessage = message
	})
	if updated {
		o.logger.Error("analysis.settle.error", "item_id", id, "error", cause)
	}
}

// EditReadings replaces reading values/dates on a SUCCESS item and recomputes
// usage. Status does not change.
func (o *Orchestrator) EditReadings(id string, startVal, endVal float64, startDate, endDate string) error {
	var editErr error
	found := o.store.Update(id, func(it *Item) {
		if it.Status != constants.ItemStatusSuccess || it.Result == nil {
			editErr = errors.New("readings can only be edited on a successfully analyzed item")
			return
		}
		it.Result.StartReading.Value = startVal
		it.Result.EndReading.Value = endVal
		if startDate != "" {
			it.Result.StartReading.Date = startDate
		}
		if endDate != "" {
			it.Result.EndReading.Date = endDate
		}
		it.Result.Recompute()
	})
	if !found {
		return errors.New("item not found")
	}
	return editErr
}

// Shutdown drains queued work and stops the workers.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.ch)
	o.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); o.wg.Wait() }()

	select {
	case <-ctx.Done():
		o.logger.Warn("orchestrator shutdown interrupted by context")
	case <-done:
		o.logger.Info("orchestrator drained, shutdown complete")
	}
}

func userMessageFor(err error) string {
	var xerr *llm.ExtractionError
	if errors.As(err, &xerr) {
		return xerr.UserMessage()
	}
	return llm.UserMessage(llm.CodeUnknown)
}
