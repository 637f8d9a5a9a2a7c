package websocket

import (
	"encoding/json"
	"hobby-relay/contract"
	"hobby-relay/domain"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

const (
	EventJoinRoom         = "joinRoom"
	EventPreviousMessages = "previousMessages"
	EventChatMessage      = "chatMessage"
	EventMessage          = "message"
	EventError            = "error"
)

var validate = validator.New()

// Envelope is the frame shared by every event in both directions.
type Envelope struct {
	Event string          `json:"event" validate:"required,oneof=joinRoom chatMessage"`
	Data  json.RawMessage `json:"data"`
}

// ChatPayload is what clients send with chatMessage.
// Sender is accepted for compatibility and ignored.
type ChatPayload struct {
	Room   string `json:"room" validate:"max=128"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// HandshakeRequest holds the identity given in the /ws query string.
type HandshakeRequest struct {
	Name string `validate:"required,max=64"`
	Room string `validate:"max=128"`
}

type MessagePayload struct {
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorPayload struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type SearchHitPayload struct {
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Lang      string    `json:"lang,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func encode(event string, data any) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Data: data})
}

func toMessagePayload(message domain.Message) MessagePayload {
	return MessagePayload{
		ID:        message.ID.String(),
		Room:      message.Room.String(),
		Sender:    message.Sender,
		Text:      message.Text,
		Timestamp: message.At,
	}
}

func toMessagePayloads(messages []domain.Message) []MessagePayload {
	return lo.Map(messages, func(message domain.Message, _ int) MessagePayload {
		return toMessagePayload(message)
	})
}

func toSearchHitPayloads(hits []contract.SearchHit) []SearchHitPayload {
	return lo.Map(hits, func(hit contract.SearchHit, _ int) SearchHitPayload {
		return SearchHitPayload{
			ID:        hit.ID,
			Room:      hit.Room.String(),
			Sender:    hit.Sender,
			Text:      hit.Text,
			Lang:      hit.Lang,
			Timestamp: hit.At,
			Score:     hit.Score,
		}
	})
}
