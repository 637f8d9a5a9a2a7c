package repositories

import (
	"context"
	"encoding/hex"
	"fmt"
	"hobby-relay/contract"
	"hobby-relay/domain"
	"hobby-relay/errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

var _ contract.IMessageStore = (*MessageRepository)(nil)

const (
	MessagePrefix   = "msg:"
	sequenceKey     = "seq:messages"
	sequenceLeasing = 1000
)

// MessageRepository is the append-only message log, one key range per room.
type MessageRepository struct {
	db     *badger.DB
	log    *slog.Logger
	seq    *badger.Sequence
	now    func() time.Time
	mu     sync.Mutex
	lastAt time.Time
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte(sequenceKey), sequenceLeasing)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &MessageRepository{
		db:     db,
		log:    log,
		seq:    seq,
		now:    time.Now,
	}, nil
}

// Append stamps the message with the server clock and persists it.
// The key is formatted as "msg:{hex room}:{unix nanos, 19 digits}:{sequence, 20 digits}" so that:
//  1. A prefix scan returns one room in chronological order.
//  2. Two messages stamped in the same nanosecond keep their insertion order.
//
// The stamped message is returned even when persistence fails, so the caller
// can still broadcast it.
func (m *MessageRepository) Append(ctx context.Context, message domain.Message) (domain.Message, error) {
	stamped, seq, err := m.stamp(message)
	if err != nil {
		return stamped, fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err)
	}

	key := messageKey(stamped.Room, stamped.At, seq)
	value := encodeMessage(stamped)
	err = runWithContext(ctx, func() error {
		return m.db.Update(func(txn *badger.Txn) error {
			return txn.Set(key, value)
		})
	})
	if err != nil {
		return stamped, fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err)
	}
	return stamped, nil
}

// stamp assigns the timestamp and the sequence number. Timestamps never go
// backwards even if the wall clock does. A single watermark covers every room.
func (m *MessageRepository) stamp(message domain.Message) (domain.Message, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	at := m.now().UTC()
	if at.Before(m.lastAt) {
		at = m.lastAt
	}
	m.lastAt = at
	message.At = at

	seq, err := m.seq.Next()
	return message, seq, err
}

// Recent returns up to limit of the latest messages of a room, oldest first.
// It scans the room prefix backwards so only the needed keys are read.
func (m *MessageRepository) Recent(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}

	values, err := runWithResult(ctx, func() ([][]byte, error) {
		var values [][]byte
		err := m.db.View(func(txn *badger.Txn) error {
			prefix := roomPrefix(roomID)
			options := badger.DefaultIteratorOptions
			options.Reverse = true
			options.Prefix = prefix
			it := txn.NewIterator(options)
			defer it.Close()

			// 0xFF sorts after every digit, so the seek lands on the newest key
			seekKey := append(append([]byte{}, prefix...), 0xFF)
			for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
				if len(values) == limit {
					break
				}
				value, err := it.Item().ValueCopy(nil)
				if err != nil {
					return err
				}
				values = append(values, value)
			}
			return nil
		})
		return values, err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err)
	}

	messages := make([]domain.Message, 0, len(values))
	for _, value := range lo.Reverse(values) {
		message, err := DecodeMessage(value)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, nil
}

// Close releases the leased sequence range.
func (m *MessageRepository) Close() error {
	return m.seq.Release()
}

func roomPrefix(roomID domain.RoomID) []byte {
	return []byte(MessagePrefix + hex.EncodeToString([]byte(roomID)) + ":")
}

func messageKey(roomID domain.RoomID, at time.Time, seq uint64) []byte {
	return fmt.Appendf(roomPrefix(roomID), "%019d:%020d", at.UnixNano(), seq)
}

func runWithContext(ctx context.Context, fn func() error) error {
	_, err := runWithResult(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// runWithResult bounds a badger call by ctx. Badger itself is not context aware,
// so on timeout the call keeps running in the background and its result is dropped.
func runWithResult[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		value, err := fn()
		done <- result{value: value, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
