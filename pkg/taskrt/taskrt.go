/*
Package taskrt is the module's task runtime: a fixed pool of
worker goroutines, each draining its own FIFO channel of task closures,
with topics hashed to a worker so every task for one topic runs in
submission order relative to the others on that topic. One runtime is
shared by the document store, outbox and access checker.
*/
package taskrt

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/cuemby/strata/pkg/metrics"
	"github.com/cuemby/strata/pkg/strlog"
)

// Task is a unit of work submitted to a topic. ctx carries a
// topic-scoped logger retrievable with strlog.FromContext.
type Task func(ctx context.Context)

// Runtime is a pool of n worker goroutines, each owning one buffered
// task channel.
type Runtime struct {
	workers []*worker
	log strlog.Logger
	wg sync.WaitGroup
}

// Config controls Runtime construction.
type Config struct {
	// Workers is the number of worker goroutines. Defaults to 4 if <= 0.
	Workers int
	// QueueDepth is each worker's channel buffer size. Defaults to 256.
	QueueDepth int
	// Logger defaults to strlog.Nop() when left unset.
	Logger *strlog.Logger
}

// New starts a Runtime with cfg.Workers goroutines, each already
// running its dispatch loop.
func New(cfg Config) *Runtime {
	n := cfg.Workers
	if n <= 0 {
		n = 4
	}
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 256
	}
	log := strlog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	rt := &Runtime{log: log}
	for i := 0; i < n; i++ {
		w := &worker{id: i, tasks: make(chan taskEnvelope, depth), log: log}
		rt.workers = append(rt.workers, w)
		rt.wg.Add(1)
		go func() {
			defer rt.wg.Done()
			w.run()
		}()
	}
	return rt
}

type taskEnvelope struct {
	ctx context.Context
	fn Task
	done chan struct{}
}

type worker struct {
	id int
	tasks chan taskEnvelope
	log strlog.Logger
}

func (w *worker) run() {
	for env := range w.tasks {
		env.fn(env.ctx)
		if env.done != nil {
			close(env.done)
		}
	}
}

// workerFor hashes topic to one of rt.workers, so every task submitted
// under the same topic runs in FIFO order on the same goroutine.
func (rt *Runtime) workerFor(topic string) *worker {
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	return rt.workers[int(h.Sum32())%len(rt.workers)]
}

// Submit enqueues fn on topic's worker and returns immediately. The
// task's context carries a logger scoped to topic.
func (rt *Runtime) Submit(ctx context.Context, topic string, fn Task) {
	taskCtx := strlog.ContextWithLogger(ctx, strlog.FromContext(ctx).WithTopic(topic))
	w := rt.workerFor(topic)
	w.tasks <- taskEnvelope{ctx: taskCtx, fn: fn}
	metrics.TaskRuntimeTasksTotal.WithLabelValues(topic).Inc()
	metrics.TaskRuntimeQueueDepth.WithLabelValues(strconv.Itoa(w.id)).Set(float64(len(w.tasks)))
}

// SubmitWait enqueues fn on topic's worker and blocks until it has run,
// used by call sites that need the task's side effects visible before
// continuing (e.g. the access checker, which waits for a check resolved
// on the object's topic worker).
func (rt *Runtime) SubmitWait(ctx context.Context, topic string, fn Task) {
	done := make(chan struct{})
	taskCtx := strlog.ContextWithLogger(ctx, strlog.FromContext(ctx).WithTopic(topic))
	w := rt.workerFor(topic)
	w.tasks <- taskEnvelope{ctx: taskCtx, fn: fn, done: done}
	metrics.TaskRuntimeTasksTotal.WithLabelValues(topic).Inc()
	metrics.TaskRuntimeQueueDepth.WithLabelValues(strconv.Itoa(w.id)).Set(float64(len(w.tasks)))
	<-done
}

// Stop closes every worker's queue and waits for in-flight tasks to
// drain. It does not cancel queued tasks; callers that need that
// should cancel the context they passed to Submit.
func (rt *Runtime) Stop() {
	for _, w := range rt.workers {
		close(w.tasks)
	}
	rt.wg.Wait()
}

// WorkerCount reports how many worker goroutines the runtime started.
func (rt *Runtime) WorkerCount() int { return len(rt.workers) }
