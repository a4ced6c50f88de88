package workers

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/platform/logger"
)

type ReportProcessor interface {
	Process(ctx context.Context, reportID string) (*domain.SettlementResult, error)
}

type SettlementJob struct {
	ReportID string
	UserID   string
}

// SettlementWorker runs report settlement off the request path. Jobs are
// sharded by user so one user's reports are always settled in order by the
// same goroutine, while different users proceed in parallel.
type SettlementWorker struct {
	processor ReportProcessor
	shards    []chan SettlementJob
	log       *logger.Logger
	wg        sync.WaitGroup
}

func NewSettlementWorker(processor ReportProcessor, shards, queueSize int, log *logger.Logger) *SettlementWorker {
	if shards <= 0 {
		shards = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	if log == nil {
		log = logger.Nop()
	}

	w := &SettlementWorker{
		processor: processor,
		shards:    make([]chan SettlementJob, shards),
		log:       log.With("component", "settlement_worker"),
	}
	for i := range w.shards {
		w.shards[i] = make(chan SettlementJob, queueSize)
	}
	return w
}

func (w *SettlementWorker) Start(ctx context.Context) {
	w.log.Info("settlement worker started", "shards", len(w.shards))
	for i, jobs := range w.shards {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for {
				select {
				case job := <-jobs:
					w.processJob(ctx, job)
				case <-ctx.Done():
					w.log.Info("settlement shard shutting down", "shard", i, "pending", len(jobs))
					return
				}
			}
		}()
	}
}

// Wait blocks until every shard has stopped after ctx cancellation.
func (w *SettlementWorker) Wait() {
	w.wg.Wait()
}

// Enqueue never blocks. It reports false when the shard queue is full and
// the job was dropped; the caller may retry later since settlement is idempotent.
func (w *SettlementWorker) Enqueue(job SettlementJob) bool {
	select {
	case w.shards[w.shardFor(job.UserID)] <- job:
		return true
	default:
		w.log.Warn("settlement queue full, dropping job", "report_id", job.ReportID, "user_id", job.UserID)
		return false
	}
}

func (w *SettlementWorker) shardFor(userID string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum64() % uint64(len(w.shards)))
}

func (w *SettlementWorker) processJob(ctx context.Context, job SettlementJob) {
	_, err := w.processor.Process(ctx, job.ReportID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrConflict):
		w.log.Info("settlement conflict, not retrying", "report_id", job.ReportID, "reason", err.Error())
	default:
		w.log.Error("settlement failed", "report_id", job.ReportID, "user_id", job.UserID, "error", err)
	}
}
