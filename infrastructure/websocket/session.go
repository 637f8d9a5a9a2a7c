package websocket

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"hobby-relay/contract"
	"hobby-relay/domain"
	"hobby-relay/domain/event"
	"hobby-relay/errors"
	"hobby-relay/observability"
	"hobby-relay/services"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

type SessionConfig struct {
	BufferSize        int
	WriteWait         time.Duration
	PongWait          time.Duration
	MaxMessageSize    int64
	RateLimitBurst    int
	RateLimitInterval time.Duration
}

func (c SessionConfig) pingPeriod() time.Duration {
	return c.PongWait * 9 / 10
}

// Session is one WebSocket client. It implements contract.Sink: the dispatcher
// pushes events into a bounded buffer drained by the write pump.
type Session struct {
	id        string
	name      string
	conn      *websocket.Conn
	service   services.IChatService
	metrics   *observability.Metrics
	log       *slog.Logger
	config    SessionConfig
	limiter   *rate.Limiter
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	room      domain.RoomID
	state     domain.SessionState
}

var _ contract.Sink = (*Session)(nil)

func NewSession(conn *websocket.Conn, name string, service services.IChatService,
	metrics *observability.Metrics, log *slog.Logger, config SessionConfig) *Session {
	id := uuid.NewString()
	limit := rate.Limit(float64(config.RateLimitBurst) / config.RateLimitInterval.Seconds())
	return &Session{
		id:      id,
		name:    name,
		conn:    conn,
		service: service,
		metrics: metrics,
		log:     log.With("session", id, "name", name),
		config:  config,
		limiter: rate.NewLimiter(limit, config.RateLimitBurst),
		send:    make(chan []byte, config.BufferSize),
		done:    make(chan struct{}),
		state:   domain.Connected,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Consume never blocks. Live messages of a room the session already left are dropped.
// A replay that doesn't fit in the buffer leaves the session in its previous room.
func (s *Session) Consume(_ context.Context, e event.DomainEvent) error {
	select {
	case <-s.done:
		return errors.ErrSessionClosed
	default:
	}

	var (
		payload []byte
		err     error
	)
	switch evt := e.(type) {
	case event.HistoryReplayed:
		// The room only switches once its history is queued
		payload, err = encode(EventPreviousMessages, toMessagePayloads(evt.Messages))
		if err != nil {
			return err
		}
		if err = s.enqueue(payload); err != nil {
			return err
		}
		s.setRoom(evt.Room)
		return nil
	case event.MessagePosted:
		if evt.RoomID() != s.currentRoom() {
			return nil
		}
		payload, err = encode(EventMessage, toMessagePayload(evt.Message))
	default:
		return nil
	}
	if err != nil {
		return err
	}
	return s.enqueue(payload)
}

func (s *Session) enqueue(payload []byte) error {
	select {
	case <-s.done:
		return errors.ErrSessionClosed
	case s.send <- payload:
		return nil
	default:
		return errors.ErrDeliveryFailure
	}
}

// Run starts the pumps and blocks until the connection is gone.
func (s *Session) Run(ctx context.Context, initialRoom string) {
	go s.writePump()
	if initialRoom != "" {
		s.join(ctx, initialRoom)
	}
	s.readPump(ctx)
	s.Close()
}

// Close detaches the session from its room and stops the write pump.
// Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = domain.Closed
		s.mu.Unlock()

		close(s.done)
		if roomID, ok := s.service.LeaveRoom(s.id); ok {
			s.log.Info("Session left", "room", roomID)
		}
	})
}

func (s *Session) setRoom(roomID domain.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.Closed {
		return
	}
	s.room = roomID
	s.state = domain.InRoom
}

func (s *Session) currentRoom() domain.RoomID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

func (s *Session) readPump(ctx context.Context) {
	s.conn.SetReadLimit(s.config.MaxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(s.config.PongWait)); err != nil {
		s.log.Debug("Setting read deadline failed", "error", err)
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.logReadError(err)
			return
		}
		s.handle(ctx, raw)
	}
}

func (s *Session) handle(ctx context.Context, raw []byte) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		s.reject(errors.ErrInvalidPayload)
		return
	}
	if err := validate.Struct(envelope); err != nil {
		s.reject(errors.ErrInvalidPayload)
		return
	}

	switch envelope.Event {
	case EventJoinRoom:
		var room string
		if err := json.Unmarshal(envelope.Data, &room); err != nil {
			s.reject(errors.ErrInvalidPayload)
			return
		}
		s.join(ctx, room)
	case EventChatMessage:
		if !s.limiter.Allow() {
			s.reject(errors.ErrRateLimited)
			return
		}
		var payload ChatPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			s.reject(errors.ErrInvalidPayload)
			return
		}
		if err := validate.Struct(payload); err != nil {
			s.reject(errors.ErrInvalidPayload)
			return
		}
		err := s.service.PostMessage(ctx, domain.PostMessageCommand{
			SessionID: s.id,
			Room:      domain.NewRoomID(payload.Room),
			Sender:    s.name,
			Text:      payload.Text,
		})
		s.report(err)
	}
}

func (s *Session) join(ctx context.Context, room string) {
	roomID, err := s.service.JoinRoom(ctx, room, s)
	if err != nil {
		s.report(err)
		return
	}
	s.log.Info("Session joined", "room", roomID)
}

// reject reports an error raised by the session itself, before reaching the service.
func (s *Session) reject(err error) {
	s.metrics.Rejected(errors.Reason(err))
	s.sendError(err)
}

func (s *Session) report(err error) {
	switch {
	case err == nil:
	case errors.IsValidation(err):
		s.sendError(err)
	case stderrors.Is(err, errors.ErrDeliveryFailure):
		s.log.Warn("Outbound buffer full, request dropped", "error", err)
		s.sendError(err)
	case stderrors.Is(err, errors.ErrSessionClosed), stderrors.Is(err, context.Canceled):
		s.log.Debug("Request dropped", "error", err)
	default:
		s.log.Error("Request failed", "error", err)
	}
}

func (s *Session) sendError(err error) {
	payload, encodeErr := encode(EventError, ErrorPayload{Reason: errors.Reason(err), Message: err.Error()})
	if encodeErr != nil {
		return
	}
	if enqueueErr := s.enqueue(payload); enqueueErr != nil {
		s.log.Debug("Error event dropped", "reason", errors.Reason(err), "error", enqueueErr)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.config.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case payload := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteWait)); err != nil {
				s.log.Debug("Setting write deadline failed", "error", err)
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.log.Debug("Write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Debug("Ping failed", "error", err)
				return
			}
		}
	}
}

func (s *Session) logReadError(err error) {
	switch {
	case stderrors.Is(err, websocket.ErrReadLimit):
		s.log.Warn("Frame exceeded maximum size", "max", s.config.MaxMessageSize)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		s.log.Info("Client disconnected")
	case stderrors.Is(err, io.EOF), websocket.IsUnexpectedCloseError(err):
		s.log.Info("Connection lost", "error", stderrors.Join(errors.ErrConnectionLost, err))
	default:
		s.log.Debug("Read failed", "error", err)
	}
}
