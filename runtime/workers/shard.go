package workers

import (
	"context"
	stderrors "errors"
	"hobby-relay/contract"
	"hobby-relay/domain"
	"hobby-relay/domain/event"
	"hobby-relay/errors"
	"hobby-relay/observability"
	"log/slog"
	"time"
)

var _ contract.Worker = (*ShardWorker)(nil)

// JoinCommand attaches a sink to a room and replays the room history to it.
type JoinCommand struct {
	Room   domain.RoomID
	Sink   contract.Sink
	Replay int
	Result chan error
}

func (c JoinCommand) RoomID() domain.RoomID { return c.Room }

// DeliverCommand persists a message and broadcasts it to the room.
type DeliverCommand struct {
	Message domain.Message
	Result  chan error
}

func (c DeliverCommand) RoomID() domain.RoomID { return c.Message.Room }

// ShardWorker processes the commands of the rooms hashed onto it, one at a time.
// Append and broadcast of a message never interleave with another command of the
// same room, so members see messages in the order they were persisted.
type ShardWorker struct {
	id             int
	log            *slog.Logger
	registry       contract.IRegistry
	store          contract.IMessageStore
	metrics        *observability.Metrics
	commands       <-chan domain.Command
	indexQueue     chan<- domain.Message
	storageTimeout time.Duration
}

func NewShardWorker(
	id int,
	log *slog.Logger,
	registry contract.IRegistry,
	store contract.IMessageStore,
	metrics *observability.Metrics,
	commands <-chan domain.Command,
	indexQueue chan<- domain.Message,
	storageTimeout time.Duration) *ShardWorker {
	return &ShardWorker{
		id:             id,
		log:            log.With("shard", id),
		registry:       registry,
		store:          store,
		metrics:        metrics,
		commands:       commands,
		indexQueue:     indexQueue,
		storageTimeout: storageTimeout,
	}
}

func (w *ShardWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping shard")
			return ctx.Err()
		case cmd, ok := <-w.commands:
			if !ok {
				w.log.Debug("Channel is closed")
				return nil
			}
			w.handle(ctx, cmd)
		}
	}
}

func (w *ShardWorker) handle(ctx context.Context, cmd domain.Command) {
	var result chan error
	defer func() {
		// The caller is waiting on the result, answer it before letting the supervisor restart us
		if r := recover(); r != nil {
			reply(result, errors.ErrWorkerPanic)
			panic(r)
		}
	}()

	switch c := cmd.(type) {
	case JoinCommand:
		result = c.Result
		reply(result, w.join(ctx, c))
	case DeliverCommand:
		result = c.Result
		reply(result, w.deliver(ctx, c.Message))
	default:
		w.log.Warn("Unknown command", "room", cmd.RoomID())
	}
}

func (w *ShardWorker) join(ctx context.Context, cmd JoinCommand) error {
	previous, moved := w.registry.Join(cmd.Room, cmd.Sink)
	if moved {
		w.log.Debug("Session moved", "session", cmd.Sink.ID(), "from", previous, "to", cmd.Room)
	}

	history := []domain.Message{}
	storeCtx, cancel := context.WithTimeout(ctx, w.storageTimeout)
	recent, err := w.store.Recent(storeCtx, cmd.Room, cmd.Replay)
	cancel()
	if err != nil {
		w.log.Error("Replay unavailable", "room", cmd.Room, "error", err)
	} else {
		history = recent
	}

	err = cmd.Sink.Consume(ctx, event.HistoryReplayed{Room: cmd.Room, Messages: history})
	if err != nil {
		w.metrics.DeliveryFailed()
		// The session never saw its replay: either it closed before the join was
		// processed and its own Leave already ran, or its buffer is full and it
		// stays outside any room.
		w.registry.Leave(cmd.Sink.ID())
		if !stderrors.Is(err, errors.ErrSessionClosed) {
			w.log.Warn("Replay not delivered, session detached", "session", cmd.Sink.ID(), "room", cmd.Room, "error", err)
		}
		return err
	}
	w.metrics.Delivered()
	return nil
}

// deliver persists then broadcasts. A storage failure is logged and counted but
// the message still goes out to the members; it is never surfaced to them.
func (w *ShardWorker) deliver(ctx context.Context, message domain.Message) error {
	storeCtx, cancel := context.WithTimeout(ctx, w.storageTimeout)
	stamped, err := w.store.Append(storeCtx, message)
	cancel()

	if err != nil {
		w.log.Error("Message not persisted, broadcasting anyway",
			"room", message.Room, "id", message.ID, "error", err)
		w.metrics.PersistFailed()
		if stamped.At.IsZero() {
			stamped = message
			stamped.At = time.Now().UTC()
		}
	} else {
		w.metrics.Persisted()
		w.offerIndex(stamped)
	}

	posted := event.MessagePosted{Message: stamped}
	for _, sink := range w.registry.Members(stamped.Room) {
		if err := sink.Consume(ctx, posted); err != nil {
			w.log.Warn("Delivery failed", "room", stamped.Room, "session", sink.ID(), "error", err)
			w.metrics.DeliveryFailed()
			continue
		}
		w.metrics.Delivered()
	}
	return nil
}

func (w *ShardWorker) offerIndex(message domain.Message) {
	if w.indexQueue == nil {
		return
	}
	select {
	case w.indexQueue <- message:
	default:
		w.log.Debug("Index queue full, skipping message", "id", message.ID)
		w.metrics.IndexDropped()
	}
}

func reply(result chan error, err error) {
	if result == nil {
		return
	}
	select {
	case result <- err:
	default:
	}
}
