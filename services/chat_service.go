package services

import (
	"context"
	"hobby-relay/contract"
	"hobby-relay/domain"
	"hobby-relay/domain/search"
	"hobby-relay/errors"
	"hobby-relay/observability"
	"log/slog"
	"time"
	"unicode/utf8"
)

type IChatService interface {
	JoinRoom(ctx context.Context, rawRoom string, sink contract.Sink) (domain.RoomID, error)
	LeaveRoom(sessionID string) (domain.RoomID, bool)
	PostMessage(ctx context.Context, cmd domain.PostMessageCommand) error
	History(ctx context.Context, rawRoom string) ([]domain.Message, error)
	Search(ctx context.Context, rawRoom, rawQuery string) ([]contract.SearchHit, error)
}

type ChatConfig struct {
	ReplayLimit      int
	HistoryLimit     int
	MaxMessageLength int
	FilterMessages   bool
	StorageTimeout   time.Duration
}

// ChatService validates what sessions send before handing it to the dispatcher.
// Nothing rejected here is persisted or broadcast.
type ChatService struct {
	log        *slog.Logger
	dispatcher contract.IDispatcher
	registry   contract.IRegistry
	store      contract.IMessageStore
	index      contract.ISearchIndex
	filter     contract.IContentFilter
	metrics    *observability.Metrics
	config     ChatConfig
}

var _ IChatService = (*ChatService)(nil)

func NewChatService(log *slog.Logger, dispatcher contract.IDispatcher, registry contract.IRegistry,
	store contract.IMessageStore, index contract.ISearchIndex, filter contract.IContentFilter,
	metrics *observability.Metrics, config ChatConfig) *ChatService {
	return &ChatService{
		log:        log,
		dispatcher: dispatcher,
		registry:   registry,
		store:      store,
		index:      index,
		filter:     filter,
		metrics:    metrics,
		config:     config,
	}
}

// JoinRoom checks the room against the topic filter then attaches the sink,
// which receives the room history before any live message.
func (s *ChatService) JoinRoom(ctx context.Context, rawRoom string, sink contract.Sink) (domain.RoomID, error) {
	roomID := domain.NewRoomID(rawRoom)
	if roomID.IsZero() {
		return "", s.reject(errors.ErrInvalidPayload)
	}
	if !s.filter.IsAllowed(roomID.String()) {
		s.log.Info("Banned room refused", "room", roomID, "session", sink.ID())
		return "", s.reject(errors.ErrBannedTopic)
	}
	if err := s.dispatcher.Join(ctx, roomID, sink, s.config.ReplayLimit); err != nil {
		return "", err
	}
	return roomID, nil
}

func (s *ChatService) LeaveRoom(sessionID string) (domain.RoomID, bool) {
	return s.registry.Leave(sessionID)
}

// PostMessage delivers the text to the session's current room. The sender is the
// one given by the transport, never the client payload.
func (s *ChatService) PostMessage(ctx context.Context, cmd domain.PostMessageCommand) error {
	current, ok := s.registry.RoomOf(cmd.SessionID)
	if !ok {
		return s.reject(errors.ErrNotInRoom)
	}
	if !cmd.Room.IsZero() && cmd.Room != current {
		return s.reject(errors.ErrRoomMismatch)
	}

	text := domain.NormalizeText(cmd.Text)
	if text == "" {
		return s.reject(errors.ErrEmptyMessage)
	}
	if s.config.MaxMessageLength > 0 && utf8.RuneCountInString(text) > s.config.MaxMessageLength {
		return s.reject(errors.ErrInvalidPayload)
	}
	if s.config.FilterMessages && !s.filter.IsAllowed(text) {
		return s.reject(errors.ErrBannedTopic)
	}

	return s.dispatcher.Deliver(ctx, domain.NewMessage(current, cmd.Sender, text))
}

// History returns the latest messages of a room, oldest first.
func (s *ChatService) History(ctx context.Context, rawRoom string) ([]domain.Message, error) {
	roomID := domain.NewRoomID(rawRoom)
	if roomID.IsZero() {
		return nil, errors.ErrInvalidPayload
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.StorageTimeout)
	defer cancel()
	return s.store.Recent(ctx, roomID, s.config.HistoryLimit)
}

// Search runs a full text query scoped to a room, eg. `opening gambit --lang en --limit 5`.
func (s *ChatService) Search(ctx context.Context, rawRoom, rawQuery string) ([]contract.SearchHit, error) {
	if s.index == nil {
		return nil, errors.ErrSearchDisabled
	}
	roomID := domain.NewRoomID(rawRoom)
	query := search.NewSearchQuery(rawQuery)
	if roomID.IsZero() || query.IsEmpty() {
		return nil, errors.ErrInvalidPayload
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.StorageTimeout)
	defer cancel()
	return s.index.Search(ctx, roomID, query.Terms, query.Lang, query.Limit)
}

func (s *ChatService) reject(err error) error {
	s.metrics.Rejected(errors.Reason(err))
	return err
}
