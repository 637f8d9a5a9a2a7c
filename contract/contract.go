//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"hobby-relay/domain"
	"hobby-relay/domain/event"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Sink is the delivery end of one session.
// Consume must never block: a full or closed sink returns an error immediately.
type Sink interface {
	ID() string
	Consume(ctx context.Context, e event.DomainEvent) error
}

type IRegistry interface {
	Join(roomID domain.RoomID, sink Sink) (previous domain.RoomID, moved bool)
	Leave(sessionID string) (domain.RoomID, bool)
	Members(roomID domain.RoomID) []Sink
	RoomOf(sessionID string) (domain.RoomID, bool)
	Rooms() int
	Sessions() int
}

type IMessageStore interface {
	Append(ctx context.Context, message domain.Message) (domain.Message, error)
	Recent(ctx context.Context, roomID domain.RoomID, limit int) ([]domain.Message, error)
}

type IContentFilter interface {
	IsAllowed(text string) bool
}

type IDispatcher interface {
	Join(ctx context.Context, roomID domain.RoomID, sink Sink, replay int) error
	Deliver(ctx context.Context, message domain.Message) error
}

// SearchHit is one indexed message matching a query.
type SearchHit struct {
	ID     string
	Room   domain.RoomID
	Sender string
	Text   string
	Lang   string
	At     time.Time
	Score  float64
}

type ISearchIndex interface {
	Index(ctx context.Context, message domain.Message, lang string) error
	Search(ctx context.Context, roomID domain.RoomID, terms, lang string, limit int) ([]SearchHit, error)
}
