package repositories

import (
	"context"
	"fmt"
	"hobby-relay/domain"
	"hobby-relay/errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").
		WithInMemory(true).
		WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestRepository(t *testing.T, db *badger.DB) *MessageRepository {
	t.Helper()
	repository, err := NewMessageRepository(db, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repository.Close() })
	return repository
}

func Test_Append_Stamps_Server_Time(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newTestRepository(t, newTestDB(t))

	// Given a client supplied timestamp far in the past
	message := domain.NewMessage("chess", "Alice", "hi")
	message.At = time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)

	before := time.Now().UTC()
	stored, err := repository.Append(ctx, message)
	req.NoError(err)

	// Then it is overwritten by the server clock
	req.False(stored.At.Before(before))
	req.Equal(message.ID, stored.ID)

	messages, err := repository.Recent(ctx, "chess", 50)
	req.NoError(err)
	req.Equal([]domain.Message{stored}, messages)
}

func Test_Recent_Returns_Latest_In_Ascending_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newTestRepository(t, newTestDB(t))

	var stored []domain.Message
	for i := 0; i < 10; i++ {
		msg, err := repository.Append(ctx, domain.NewMessage("chess", "Alice", fmt.Sprintf("move %d", i)))
		req.NoError(err)
		stored = append(stored, msg)
	}

	messages, err := repository.Recent(ctx, "chess", 3)
	req.NoError(err)
	req.Equal(stored[7:], messages)

	all, err := repository.Recent(ctx, "chess", 100)
	req.NoError(err)
	req.Equal(stored, all)

	for i := 1; i < len(all); i++ {
		req.False(all[i].At.Before(all[i-1].At))
	}
}

func Test_Recent_Keeps_Insertion_Order_When_Clock_Stalls(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newTestRepository(t, newTestDB(t))

	// Given a frozen clock, then one going backwards
	frozen := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	clock := []time.Time{frozen, frozen, frozen.Add(-time.Hour), frozen}
	calls := 0
	repository.now = func() time.Time {
		at := clock[calls]
		calls++
		return at
	}

	var texts []string
	for i := 0; i < len(clock); i++ {
		text := fmt.Sprintf("line %d", i)
		msg, err := repository.Append(ctx, domain.NewMessage("chess", "Bob", text))
		req.NoError(err)
		req.Equal(frozen, msg.At)
		texts = append(texts, text)
	}

	messages, err := repository.Recent(ctx, "chess", 10)
	req.NoError(err)
	req.Len(messages, len(texts))
	for i, msg := range messages {
		req.Equal(texts[i], msg.Text)
	}
}

func Test_Append_Clock_Going_Back_Across_Rooms(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newTestRepository(t, newTestDB(t))

	// Given a clock stepping back an hour between two rooms
	frozen := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	clock := []time.Time{frozen, frozen.Add(-time.Hour), frozen.Add(time.Second)}
	calls := 0
	repository.now = func() time.Time {
		at := clock[calls]
		calls++
		return at
	}

	chess, err := repository.Append(ctx, domain.NewMessage("chess", "Alice", "e4"))
	req.NoError(err)
	knitting, err := repository.Append(ctx, domain.NewMessage("knitting", "Bob", "purl"))
	req.NoError(err)
	later, err := repository.Append(ctx, domain.NewMessage("knitting", "Bob", "knit"))
	req.NoError(err)

	// Then no room sees time going back and the clock is used again once it catches up
	req.Equal(frozen, chess.At)
	req.Equal(frozen, knitting.At)
	req.Equal(frozen.Add(time.Second), later.At)
}

func Test_Recent_Isolates_Rooms(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newTestRepository(t, newTestDB(t))

	// "ab" and "a" share a string prefix but not a key prefix
	_, err := repository.Append(ctx, domain.NewMessage("a", "Alice", "in a"))
	req.NoError(err)
	_, err = repository.Append(ctx, domain.NewMessage("ab", "Bob", "in ab"))
	req.NoError(err)
	_, err = repository.Append(ctx, domain.NewMessage("room:with:colons", "Carol", "colons"))
	req.NoError(err)

	messages, err := repository.Recent(ctx, "a", 10)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("in a", messages[0].Text)

	messages, err = repository.Recent(ctx, "room:with:colons", 10)
	req.NoError(err)
	req.Len(messages, 1)

	empty, err := repository.Recent(ctx, "unknown", 10)
	req.NoError(err)
	req.Empty(empty)
}

func Test_Recent_Zero_Limit(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t, newTestDB(t))

	_, err := repository.Append(context.Background(), domain.NewMessage("chess", "Alice", "hi"))
	req.NoError(err)

	messages, err := repository.Recent(context.Background(), "chess", 0)
	req.NoError(err)
	req.NotNil(messages)
	req.Empty(messages)
}

func Test_Append_Canceled_Context(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t, newTestDB(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stored, err := repository.Append(ctx, domain.NewMessage("chess", "Alice", "hi"))
	req.ErrorIs(err, errors.ErrStorageUnavailable)
	req.ErrorIs(err, context.Canceled)
	req.False(stored.At.IsZero())

	_, err = repository.Recent(ctx, "chess", 10)
	req.ErrorIs(err, context.Canceled)
}

func Test_Codec_Round_Trip_And_Unknown_Fields(t *testing.T) {
	req := require.New(t)
	message := domain.NewMessage("chess", "Alice", "héllo")
	message.At = time.Unix(0, 1760000000123456789).UTC()

	encoded := encodeMessage(message)
	// A field from a newer schema version
	encoded = appendString(encoded, 42, "ignored")

	decoded, err := DecodeMessage(encoded)
	req.NoError(err)
	req.Equal(message, decoded)

	_, err = DecodeMessage([]byte{0xFF})
	req.Error(err)
}
