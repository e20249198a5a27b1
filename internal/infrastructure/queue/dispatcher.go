package queue

import (
	"context"
	"hash/fnv"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	defaultWorkers = 4
	channelBuffer  = 64
)

// Job is a unit of refresh work.
type Job func(ctx context.Context)

type keyedJob struct {
	key string
	run Job
}

// Dispatcher routes refresh jobs to a fixed set of workers using consistent
// hashing on the job key, so jobs for the same feed scope never overlap and
// run in enqueue order.
type Dispatcher struct {
	workers []chan keyedJob
	depth   *prometheus.GaugeVec
	log     zerolog.Logger
	done    <-chan struct{}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDepthGauge reports per-worker queue depth on g, labelled by worker_id.
func WithDepthGauge(g *prometheus.GaugeVec) Option {
	return func(d *Dispatcher) { d.depth = g }
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, log zerolog.Logger, opts ...Option) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan keyedJob, numWorkers),
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan keyedJob, channelBuffer)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.done = ctx.Done()
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue hands job to the worker responsible for key. It blocks only while
// that worker's buffer is full, and drops the job once the dispatcher has
// been stopped.
func (d *Dispatcher) Enqueue(key string, job func(ctx context.Context)) {
	idx := d.shardIndex(key)
	select {
	case d.workers[idx] <- keyedJob{key: key, run: job}:
		d.observe(idx)
	case <-d.done:
		d.log.Debug().Str("key", key).Msg("dispatcher stopped, dropping job")
	}
}

// shardIndex maps a key deterministically to a worker index.
func (d *Dispatcher) shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) observe(idx int) {
	if d.depth == nil {
		return
	}
	d.depth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan keyedJob) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-ch:
			if !ok {
				return
			}
			d.observe(id)
			d.run(ctx, id, job)
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, id int, job keyedJob) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Interface("panic", r).
				Str("key", job.key).
				Int("worker_id", id).
				Msg("refresh job panicked")
		}
	}()
	job.run(ctx)
}
