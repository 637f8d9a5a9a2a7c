package websocket

import (
	"context"
	"hobby-relay/domain"
	"hobby-relay/domain/event"
	"hobby-relay/errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newBufferedSession(bufferSize int) *Session {
	return NewSession(nil, "Alice", nil, nil, slog.New(slog.DiscardHandler), SessionConfig{
		BufferSize:        bufferSize,
		RateLimitBurst:    1,
		RateLimitInterval: time.Second,
	})
}

func TestSession_Replay_Switches_Room_Once_Queued(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	session := newBufferedSession(1)

	// When the replay fits in the buffer
	req.NoError(session.Consume(ctx, event.HistoryReplayed{Room: "chess"}))

	// Then the session is in the room
	req.Equal(domain.InRoom, session.State())
	req.Equal(domain.RoomID("chess"), session.currentRoom())

	// When the buffer is full and the session moves to another room
	err := session.Consume(ctx, event.HistoryReplayed{Room: "go"})

	// Then the move fails and the session keeps its room
	req.ErrorIs(err, errors.ErrDeliveryFailure)
	req.Equal(domain.RoomID("chess"), session.currentRoom())
	req.Len(session.send, 1)
}

func TestSession_Drops_Messages_Of_Other_Rooms(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	session := newBufferedSession(4)
	req.NoError(session.Consume(ctx, event.HistoryReplayed{Room: "chess"}))

	req.NoError(session.Consume(ctx, event.MessagePosted{Message: domain.NewMessage("go", "Bob", "komi")}))
	req.NoError(session.Consume(ctx, event.MessagePosted{Message: domain.NewMessage("chess", "Bob", "e5")}))

	req.Len(session.send, 2)
}
