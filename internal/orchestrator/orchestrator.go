// Package orchestrator drives the per-URL analysis pipeline (spec §4.7)
// and the worker-pool concurrency model that runs it (spec §5): one
// decision worker per configured decision endpoint, one analysis worker
// per configured analysis endpoint, each bound to its own LLM worker with
// no cross-worker multiplexing.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyandrews/argus/internal/clustering"
	"github.com/jeremyandrews/argus/internal/embedder"
	"github.com/jeremyandrews/argus/internal/entity"
	"github.com/jeremyandrews/argus/internal/llm"
	"github.com/jeremyandrews/argus/internal/logger"
	"github.com/jeremyandrews/argus/internal/relevance"
	"github.com/jeremyandrews/argus/internal/store"
	"github.com/jeremyandrews/argus/internal/vectorstore"
)

// pollInterval is how long a worker sleeps after finding its queue empty.
const pollInterval = 2 * time.Second

// analysisQueueDepth bounds the in-process handoff between decision and
// analysis workers; it is not durable, unlike the relational-store queues,
// because it only ever holds articles within a single process lifetime
// between the decision and analysis phases of one pipeline run.
const analysisQueueDepth = 64

// Deps wires every collaborator the orchestrator drives. All fields are
// required except Fetcher (defaults to NaiveFetcher), Notifier (defaults to
// StoreNotifier), RequestTimeout (defaults to 60s) and EmbedTimeout
// (defaults to 120s).
type Deps struct {
	Store          *store.Store
	Vector         vectorstore.VectorStore
	Embedder       *embedder.Embedder
	Matcher        *entity.Matcher
	Clustering     *clustering.Engine
	TopicGate      *relevance.TopicGate
	Fetcher        ContentFetcher
	Notifier       Notifier
	DecisionPool   *llm.Pool
	AnalysisPool   *llm.Pool
	RequestTimeout time.Duration
	EmbedTimeout   time.Duration
}

// Orchestrator runs the decision and analysis worker pools over Deps.
type Orchestrator struct {
	deps          Deps
	analysisQueue chan pendingAnalysis
}

// pendingAnalysis is the in-process handoff from a decision worker to an
// analysis worker: everything steps 4-8 need that the decision phase
// already has in hand.
type pendingAnalysis struct {
	articleID int64
	title     string
	body      string
	topics    []string
	traceID   string
}

// New builds an Orchestrator. Missing optional deps are defaulted.
func New(deps Deps) *Orchestrator {
	if deps.Fetcher == nil {
		deps.Fetcher = NewNaiveFetcher()
	}
	if deps.Notifier == nil {
		deps.Notifier = StoreNotifier{Store: deps.Store}
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 60 * time.Second
	}
	if deps.EmbedTimeout <= 0 {
		deps.EmbedTimeout = 120 * time.Second
	}
	return &Orchestrator{deps: deps, analysisQueue: make(chan pendingAnalysis, analysisQueueDepth)}
}

// Run starts every decision and analysis worker and blocks until ctx is
// cancelled and all workers have exited.
func (o *Orchestrator) Run(ctx context.Context) {
	var wg sync.WaitGroup

	decisionWorkers := o.deps.DecisionPool.All()
	for i, w := range decisionWorkers {
		wg.Add(1)
		go func(idx int, w *llm.Worker) {
			defer wg.Done()
			o.runWithRestart(ctx, "decision", idx, func() { o.decisionLoop(ctx, w) })
		}(i, w)
	}

	analysisWorkers := o.deps.AnalysisPool.All()
	for i, w := range analysisWorkers {
		wg.Add(1)
		go func(idx int, w *llm.Worker) {
			defer wg.Done()
			o.runWithRestart(ctx, "analysis", idx, func() { o.analysisLoop(ctx, w) })
		}(i, w)
	}

	wg.Wait()
}

// runWithRestart runs fn until ctx is cancelled, restarting it from the top
// on panic (spec §5: "on panic the worker is restarted from the top of its
// loop").
func (o *Orchestrator) runWithRestart(ctx context.Context, kind string, idx int, fn func()) {
	for ctx.Err() == nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("worker panicked, restarting", "kind", kind, "index", idx, "panic", r)
				}
			}()
			fn()
		}()
	}
}

// decisionLoop dequeues URLs and runs steps 1-3 until ctx is cancelled.
func (o *Orchestrator) decisionLoop(ctx context.Context, w *llm.Worker) {
	for ctx.Err() == nil {
		item, err := o.deps.Store.DequeueRSS()
		if err != nil {
			logger.Error("dequeue rss item failed", "error", err)
			sleep(ctx, pollInterval)
			continue
		}
		if item == nil {
			sleep(ctx, pollInterval)
			continue
		}
		o.decide(ctx, w, *item)
	}
}

// analysisLoop takes items from the in-process handoff and runs steps 4-8
// until ctx is cancelled. On cancellation it returns once the item in hand
// is finished; items still buffered in the handoff are not processed.
func (o *Orchestrator) analysisLoop(ctx context.Context, w *llm.Worker) {
	for {
		select {
		case <-ctx.Done():
			return
		case work := <-o.analysisQueue:
			o.analyze(ctx, w, work)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func newTraceID() string { return uuid.NewString() }
