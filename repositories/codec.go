package repositories

import (
	"fmt"
	"hobby-relay/domain"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Stored records use the protobuf wire format:
//
//	message Message {
//	  string id = 1;
//	  string room = 2;
//	  string sender = 3;
//	  string text = 4;
//	  int64 at = 5; // unix nanos
//	}
const (
	fieldID     protowire.Number = 1
	fieldRoom   protowire.Number = 2
	fieldSender protowire.Number = 3
	fieldText   protowire.Number = 4
	fieldAt     protowire.Number = 5
)

func encodeMessage(message domain.Message) []byte {
	b := make([]byte, 0, 64+len(message.Text))
	b = appendString(b, fieldID, message.ID.String())
	b = appendString(b, fieldRoom, string(message.Room))
	b = appendString(b, fieldSender, message.Sender)
	b = appendString(b, fieldText, message.Text)
	b = protowire.AppendTag(b, fieldAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(message.At.UnixNano()))
	return b
}

func appendString(b []byte, num protowire.Number, value string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, value)
}

// DecodeMessage skips unknown fields so records written by newer versions still load.
func DecodeMessage(b []byte) (domain.Message, error) {
	var message domain.Message
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return domain.Message{}, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldAt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return domain.Message{}, protowire.ParseError(n)
			}
			message.At = time.Unix(0, int64(v)).UTC()
			b = b[n:]
		case num >= fieldID && num <= fieldText && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return domain.Message{}, protowire.ParseError(n)
			}
			if err := setStringField(&message, num, v); err != nil {
				return domain.Message{}, err
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return domain.Message{}, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return message, nil
}

func setStringField(message *domain.Message, num protowire.Number, value string) error {
	switch num {
	case fieldID:
		id, err := uuid.Parse(value)
		if err != nil {
			return fmt.Errorf("message id: %w", err)
		}
		message.ID = id
	case fieldRoom:
		message.Room = domain.RoomID(value)
	case fieldSender:
		message.Sender = value
	case fieldText:
		message.Text = value
	}
	return nil
}
