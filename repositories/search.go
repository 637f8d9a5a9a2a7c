package repositories

import (
	"context"
	"hobby-relay/contract"
	"hobby-relay/domain"
	"log/slog"

	"github.com/blugelabs/bluge"
)

var _ contract.ISearchIndex = (*SearchIndex)(nil)

const (
	searchFieldID     = "_id"
	searchFieldRoom   = "room"
	searchFieldSender = "sender"
	searchFieldText   = "text"
	searchFieldLang   = "lang"
	searchFieldAt     = "at"
)

// SearchIndex is a full-text index over persisted messages.
// It is fed after persistence and never consulted on the delivery path.
type SearchIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchIndex(writer *bluge.Writer, log *slog.Logger) *SearchIndex {
	return &SearchIndex{writer: writer, log: log}
}

// Index stores or replaces the document of a message, keyed by its id.
func (s *SearchIndex) Index(_ context.Context, message domain.Message, lang string) error {
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewKeywordField(searchFieldRoom, string(message.Room)).StoreValue()).
		AddField(bluge.NewKeywordField(searchFieldSender, message.Sender).StoreValue()).
		AddField(bluge.NewTextField(searchFieldText, message.Text).StoreValue()).
		AddField(bluge.NewKeywordField(searchFieldLang, lang).StoreValue()).
		AddField(bluge.NewDateTimeField(searchFieldAt, message.At).StoreValue())
	return s.writer.Update(doc.ID(), doc)
}

// Search runs a match query on the text of one room, optionally restricted to a language.
func (s *SearchIndex) Search(ctx context.Context, roomID domain.RoomID, terms, lang string, limit int) ([]contract.SearchHit, error) {
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			s.log.Warn("Closing search reader failed", "error", err)
		}
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(terms).SetField(searchFieldText)).
		AddMust(bluge.NewTermQuery(string(roomID)).SetField(searchFieldRoom))
	if lang != "" {
		query.AddMust(bluge.NewTermQuery(lang).SetField(searchFieldLang))
	}

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, err
	}

	var hits []contract.SearchHit
	match, err := iterator.Next()
	for err == nil && match != nil {
		hit := contract.SearchHit{Score: match.Score}
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case searchFieldID:
				hit.ID = string(value)
			case searchFieldRoom:
				hit.Room = domain.RoomID(value)
			case searchFieldSender:
				hit.Sender = string(value)
			case searchFieldText:
				hit.Text = string(value)
			case searchFieldLang:
				hit.Lang = string(value)
			case searchFieldAt:
				if at, decodeErr := bluge.DecodeDateTime(value); decodeErr == nil {
					hit.At = at.UTC()
				}
			}
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		hits = append(hits, hit)
		match, err = iterator.Next()
	}
	if err != nil {
		return nil, err
	}
	return hits, nil
}
