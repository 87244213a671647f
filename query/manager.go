// Package query drives one running query end to end: it wires every
// lowered pipeline's per-worker execution contexts, feeds source buffers
// and cross-pipeline record dispatches through a worker pool, and
// implements the soft/hard stop termination sequence (spec §4.G).
//
// The worker pool itself is concurrency.Executor, adapted nearly
// verbatim from the teacher's core/concurrency.Executor: a fixed,
// resizable pool of goroutines each owning a lock-free local queue, with
// a buffered global queue absorbing overflow. This package generalizes
// the teacher's bare TaskFunc into a (pipeline, buffer|records) task and
// adds the spool/drain machinery the engine's termination sequence
// needs but the teacher's WebSocket dispatch loop never did.
package query

import (
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/nebulastream/nesengine/affinity"
	"github.com/nebulastream/nesengine/buffer"
	"github.com/nebulastream/nesengine/concurrency"
	"github.com/nebulastream/nesengine/config"
	"github.com/nebulastream/nesengine/engerrors"
	"github.com/nebulastream/nesengine/physical"
	"github.com/nebulastream/nesengine/plan"
	"github.com/nebulastream/nesengine/runtime"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Manager owns one running query: every lowered pipeline's per-worker
// PipelineExecutionContexts, the worker pool driving them, and the
// overflow spool absorbing submissions the pool's queues momentarily
// refuse.
type Manager struct {
	lowered  *physical.LoweredQuery
	pool     *buffer.Pool
	executor *concurrency.Executor
	sink     physical.Sink

	byID  map[runtime.PipelineID]*physical.Pipeline
	pecs  map[runtime.PipelineID][]*runtime.PipelineExecutionContext
	turns map[runtime.PipelineID]*uint64

	turnMu sync.Mutex

	wg sync.WaitGroup // outstanding tasks, including recursively dispatched ones

	overflowMu sync.Mutex
	overflow   *queue.Queue
	overflowWG sync.WaitGroup
	stopSpool  chan struct{}
}

// Pin pins the calling worker goroutine to logical CPU workerID via
// affinity.SetAffinity (the id is not wrapped by the CPU count), logging
// (not failing) when pinning fails or is unsupported — pinning is an
// optimization, not a correctness requirement.
func Pin(workerID int) {
	if err := affinity.SetAffinity(workerID); err != nil {
		logrus.WithError(err).WithField("worker", workerID).Debug("query: cpu pinning unavailable")
	}
}

// NewManager constructs per-worker execution contexts for every pipeline
// in lowered and starts a numWorkers-goroutine pool to drive them. pin is
// typically query.Pin; nil disables pinning entirely.
func NewManager(lowered *physical.LoweredQuery, pool *buffer.Pool, numWorkers int, pin func(int)) *Manager {
	m := &Manager{
		lowered:   lowered,
		pool:      pool,
		executor:  concurrency.NewExecutor(numWorkers, pin),
		byID:      make(map[runtime.PipelineID]*physical.Pipeline, len(lowered.Pipelines)),
		pecs:      make(map[runtime.PipelineID][]*runtime.PipelineExecutionContext, len(lowered.Pipelines)),
		turns:     make(map[runtime.PipelineID]*uint64, len(lowered.Pipelines)),
		overflow:  queue.New(),
		stopSpool: make(chan struct{}),
	}
	workers := numWorkers
	if workers <= 0 {
		workers = m.executor.NumWorkers()
	}
	for _, p := range lowered.Pipelines {
		m.byID[p.ID] = p
		turn := new(uint64)
		m.turns[p.ID] = turn
		emit := m.emitFuncFor(p)
		pecs := make([]*runtime.PipelineExecutionContext, workers)
		for w := 0; w < workers; w++ {
			pecs[w] = runtime.NewPipelineExecutionContext(p.ID, w, pool, p.Handlers, emit)
		}
		m.pecs[p.ID] = pecs
	}
	lowered.Router.R = m

	m.overflowWG.Add(1)
	go m.drainOverflow()
	return m
}

// emitFuncFor returns the EmitFunc a pipeline's PipelineExecutionContexts
// should use: the sink pipeline forwards every buffer into the
// configured Sink; every other pipeline's terminal operator dispatches
// Records through RouteRecords directly and never calls ctx.Emit, so its
// EmitFunc is never invoked.
func (m *Manager) emitFuncFor(p *physical.Pipeline) runtime.EmitFunc {
	if p != m.lowered.SinkPipeline {
		return nil
	}
	return func(buf buffer.TupleBuffer) {
		if m.sink == nil {
			buf.Release()
			return
		}
		if _, err := m.sink.WriteData(buf); err != nil {
			logrus.WithError(err).Error("query: sink write failed")
		}
	}
}

// SetSink wires the query's output sink and runs its Setup.
func (m *Manager) SetSink(sink physical.Sink) error {
	m.sink = sink
	return sink.Setup()
}

// Start runs every OperatorHandler's Start hook once, before any buffer
// is submitted.
func (m *Manager) Start() error {
	for h := range m.dedupHandlers() {
		if err := h.Start(); err != nil {
			return engerrors.Wrap(engerrors.OperatorExecutionFailure, "query: handler start failed", err)
		}
	}
	return nil
}

func (m *Manager) pecFor(id runtime.PipelineID) *runtime.PipelineExecutionContext {
	pecs := m.pecs[id]
	m.turnMu.Lock()
	turn := m.turns[id]
	idx := *turn % uint64(len(pecs))
	*turn++
	m.turnMu.Unlock()
	return pecs[idx]
}

// SubmitBuffer feeds an externally produced buffer into the entry
// pipeline registered for sourceName (spec §4.G: "a task is (pipeline,
// inputBuffer)").
func (m *Manager) SubmitBuffer(sourceName string, buf buffer.TupleBuffer) error {
	p, ok := m.lowered.EntrySources[sourceName]
	if !ok {
		return engerrors.New(engerrors.OperatorExecutionFailure, "query: unknown source").
			WithContext("source", sourceName)
	}
	return m.schedule(p, buf, nil)
}

// RouteRecords implements physical.Router: it dispatches a finalized
// record batch (a window merge, a join probe, a Union side) to the
// pipeline identified by pipelineID.
func (m *Manager) RouteRecords(pipelineID runtime.PipelineID, recs []physical.Record) error {
	p, ok := m.byID[pipelineID]
	if !ok {
		return engerrors.New(engerrors.OperatorExecutionFailure, "query: unknown pipeline").
			WithContext("pipeline", uint64(pipelineID))
	}
	return m.schedule(p, buffer.TupleBuffer{}, recs)
}

// schedule submits one pipeline invocation to the worker pool, spooling
// into the overflow queue when the pool's local/global queues are both
// momentarily full (spec §4.G back-pressure: "a producer that cannot
// obtain [a slot] blocks, transitively slowing its upstream" — here
// realized as an unbounded spool rather than a blocking call, since the
// caller may itself be a worker goroutine that must not deadlock against
// its own pool).
func (m *Manager) schedule(p *physical.Pipeline, buf buffer.TupleBuffer, recs []physical.Record) error {
	pec := m.pecFor(p.ID)
	m.wg.Add(1)
	run := func() {
		defer m.wg.Done()
		var err error
		if recs != nil {
			err = p.RunRecords(pec, recs)
		} else {
			err = p.RunBuffer(pec, buf)
		}
		if err != nil {
			logrus.WithError(err).WithField("pipeline", p.ID).Error("query: pipeline invocation failed")
		}
	}
	if err := m.executor.Submit(run); err != nil {
		if m.executor.Closed() {
			m.wg.Done()
			return engerrors.Wrap(engerrors.ShutdownInterrupted, "query: executor closed", err)
		}
		// Both queues were momentarily full rather than the executor
		// being closed (concurrency.Executor.Submit conflates the two
		// into the same error) — spool it for drainOverflow to retry.
		m.overflowMu.Lock()
		m.overflow.Add(run)
		m.overflowMu.Unlock()
	}
	return nil
}

// drainOverflow retries spooled submissions until the executor accepts
// them or the manager stops.
func (m *Manager) drainOverflow() {
	defer m.overflowWG.Done()
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopSpool:
			return
		case <-ticker.C:
			for {
				m.overflowMu.Lock()
				if m.overflow.Length() == 0 {
					m.overflowMu.Unlock()
					break
				}
				front := m.overflow.Peek().(func())
				m.overflowMu.Unlock()
				if err := m.executor.Submit(front); err != nil {
					break
				}
				m.overflowMu.Lock()
				m.overflow.Remove()
				m.overflowMu.Unlock()
			}
		}
	}
}

func (m *Manager) dedupHandlers() map[runtime.OperatorHandler]struct{} {
	seen := make(map[runtime.OperatorHandler]struct{})
	for _, p := range m.lowered.Pipelines {
		for _, h := range p.Handlers {
			seen[h] = struct{}{}
		}
	}
	return seen
}

// StopGraceful runs the graceful-stop termination sequence (spec §4.G):
// sources have already stopped producing by the time a caller invokes
// this; every stateful operator handler flushes its buffered state via
// the windowing/join finalizers (which may themselves schedule more
// tasks), the manager waits for every task — including those
// recursively scheduled by the flush — to finish, the worker pool stops,
// the sink flushes, and handlers release their resources.
func (m *Manager) StopGraceful() error {
	handlers := m.dedupHandlers()

	var g errgroup.Group
	for h := range handlers {
		h := h
		g.Go(h.Drain)
	}
	if err := g.Wait(); err != nil {
		return engerrors.Wrap(engerrors.ShutdownInterrupted, "query: handler drain failed", err)
	}

	m.wg.Wait()
	close(m.stopSpool)
	m.overflowWG.Wait()
	m.executor.Close()

	if m.sink != nil {
		if err := m.sink.Shutdown(); err != nil {
			return engerrors.Wrap(engerrors.ShutdownInterrupted, "query: sink shutdown failed", err)
		}
	}
	for h := range handlers {
		if err := h.Stop(); err != nil {
			logrus.WithError(err).Warn("query: handler stop failed")
		}
	}
	return nil
}

// NewManagerFromConfig is the single constructor spec §6 describes:
// given a logical plan and a loaded EngineConfig, it lowers the plan,
// allocates the buffer pool, and wires a ready-to-run Manager. Callers
// still call SetSink and Start before submitting any source buffer.
func NewManagerFromConfig(cfg config.EngineConfig, p plan.Plan) (*Manager, *physical.LoweredQuery, error) {
	lowered, err := physical.Lower(p, physical.LowerConfig{
		NumWorkers:   cfg.NumWorkers,
		JoinPageSize: cfg.JoinPageSize,
		Backend:      cfg.Backend.Nautilus(),
	})
	if err != nil {
		return nil, nil, err
	}
	pool := buffer.NewPool(cfg.NUMANode, cfg.PoolBufferSize, cfg.PoolCapacity)
	m := NewManager(lowered, pool, cfg.NumWorkers, Pin)
	return m, lowered, nil
}

// StopHard drops every queued and spooled task immediately (spec §4.G:
// "hard stop drops the queue") and releases resources without flushing
// buffered windowing/join state.
func (m *Manager) StopHard() error {
	close(m.stopSpool)
	m.overflowWG.Wait()
	m.overflowMu.Lock()
	m.overflow = queue.New()
	m.overflowMu.Unlock()

	m.executor.Close()

	var firstErr error
	if m.sink != nil {
		if err := m.sink.Shutdown(); err != nil {
			firstErr = err
		}
	}
	for h := range m.dedupHandlers() {
		if err := h.Stop(); err != nil {
			logrus.WithError(err).Warn("query: handler stop failed")
		}
	}
	if firstErr != nil {
		return engerrors.Wrap(engerrors.ShutdownInterrupted, "query: sink shutdown failed during hard stop", firstErr)
	}
	return nil
}
