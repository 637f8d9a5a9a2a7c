// Package runtime routes joins and messages to the shard owning their room.
// It orchestrates the workers without containing validation rules.
package runtime

import (
	"context"
	"fmt"
	"hobby-relay/contract"
	"hobby-relay/domain"
	"hobby-relay/errors"
	"hobby-relay/observability"
	"hobby-relay/runtime/workers"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

var _ contract.IDispatcher = (*Dispatcher)(nil)

type Dispatcher struct {
	mu             sync.Mutex
	log            *slog.Logger
	supervisor     contract.ISupervisor
	registry       contract.IRegistry
	store          contract.IMessageStore
	index          contract.ISearchIndex
	metrics        *observability.Metrics
	shards         []chan domain.Command
	indexQueue     chan domain.Message
	extraWorkers   []contract.Worker
	storageTimeout time.Duration
	langConfidence float64
	done           chan struct{}
	stopOnce       sync.Once
}

// NewDispatcher creates numShards command channels of bufferSize each.
// index may be nil, in which case messages are not indexed.
func NewDispatcher(log *slog.Logger, supervisor contract.ISupervisor,
	registry contract.IRegistry, store contract.IMessageStore, index contract.ISearchIndex,
	metrics *observability.Metrics, numShards, bufferSize int, storageTimeout time.Duration) *Dispatcher {
	if numShards < 1 {
		numShards = 1
	}
	shards := make([]chan domain.Command, numShards)
	for i := range shards {
		shards[i] = make(chan domain.Command, bufferSize)
	}
	var indexQueue chan domain.Message
	if index != nil {
		indexQueue = make(chan domain.Message, bufferSize)
	}
	return &Dispatcher{
		log:            log,
		supervisor:     supervisor,
		registry:       registry,
		store:          store,
		index:          index,
		metrics:        metrics,
		shards:         shards,
		indexQueue:     indexQueue,
		storageTimeout: storageTimeout,
		langConfidence: workers.DefaultLangConfidence,
		done:           make(chan struct{}),
	}
}

// Add registers extra workers supervised alongside the shards.
func (d *Dispatcher) Add(workers ...contract.Worker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.extraWorkers = append(d.extraWorkers, workers...)
}

// SetLangConfidence sets the detection confidence under which indexed
// messages get no language tag. Call it before Start.
func (d *Dispatcher) SetLangConfidence(confidence float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.langConfidence = confidence
}

// Queues names the shard and indexer channels for queue sampling.
func (d *Dispatcher) Queues() []workers.NamedChannel {
	queues := make([]workers.NamedChannel, 0, len(d.shards)+1)
	for i, commands := range d.shards {
		queues = append(queues, workers.NamedChannel{Name: fmt.Sprintf("shard-%d", i), Channel: commands})
	}
	if d.indexQueue != nil {
		queues = append(queues, workers.NamedChannel{Name: "indexer", Channel: d.indexQueue})
	}
	return queues
}

// Start registers the shard workers and the indexer on the supervisor then
// blocks until the supervisor returns.
func (d *Dispatcher) Start(ctx context.Context) {
	select {
	case <-d.done:
		d.log.Info("Dispatcher stopped before start")
		return
	default:
	}

	d.mu.Lock()
	for i, commands := range d.shards {
		d.supervisor.Add(workers.NewShardWorker(i, d.log, d.registry, d.store, d.metrics,
			commands, d.indexQueue, d.storageTimeout))
	}
	if d.index != nil {
		d.supervisor.Add(workers.NewIndexWorker(d.index, d.indexQueue, d.storageTimeout, d.langConfidence, d.log))
	}
	d.supervisor.Add(d.extraWorkers...)
	d.mu.Unlock()

	d.log.Info("Starting dispatcher and all supervised workers", "shards", len(d.shards))
	d.supervisor.Run(ctx)
}

// Stop cancels the workers. Pending and later calls fail with ErrDispatcherStopped.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.log.Info("Requesting dispatcher shutdown")
		close(d.done)
		d.supervisor.Stop()
	})
}

// Join attaches the sink to roomID and replays up to replay messages to it,
// serialized with every delivery of that room.
func (d *Dispatcher) Join(ctx context.Context, roomID domain.RoomID, sink contract.Sink, replay int) error {
	result := make(chan error, 1)
	cmd := workers.JoinCommand{Room: roomID, Sink: sink, Replay: replay, Result: result}
	return d.submit(ctx, cmd, result)
}

// Deliver persists the message and broadcasts it to the members of its room.
// It returns once every member has been offered the message.
func (d *Dispatcher) Deliver(ctx context.Context, message domain.Message) error {
	result := make(chan error, 1)
	return d.submit(ctx, workers.DeliverCommand{Message: message, Result: result}, result)
}

func (d *Dispatcher) submit(ctx context.Context, cmd domain.Command, result <-chan error) error {
	select {
	case <-d.done:
		return errors.ErrDispatcherStopped
	default:
	}

	shard := d.shardFor(cmd.RoomID())
	select {
	case <-d.done:
		return errors.ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	case shard <- cmd:
	}

	select {
	case err := <-result:
		return err
	case <-d.done:
		return errors.ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) shardFor(roomID domain.RoomID) chan domain.Command {
	return d.shards[xxhash.Sum64String(string(roomID))%uint64(len(d.shards))]
}
