package workers

import (
	"context"
	"hobby-relay/contract"
	"hobby-relay/domain"
	"log/slog"
	"time"

	"github.com/abadojack/whatlanggo"
)

var _ contract.Worker = (*IndexWorker)(nil)

// DefaultLangConfidence fits single chat lines, on which whatlanggo seldom
// goes past 0.5.
const DefaultLangConfidence = 0.2

// IndexWorker tags persisted messages with their detected language and feeds
// them to the search index.
type IndexWorker struct {
	index          contract.ISearchIndex
	messages       <-chan domain.Message
	timeout        time.Duration
	langConfidence float64
	log            *slog.Logger
}

func NewIndexWorker(index contract.ISearchIndex, messages <-chan domain.Message,
	timeout time.Duration, langConfidence float64, log *slog.Logger) *IndexWorker {
	return &IndexWorker{index: index, messages: messages, timeout: timeout, langConfidence: langConfidence, log: log}
}

func (w *IndexWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping indexer")
			return ctx.Err()
		case message, ok := <-w.messages:
			if !ok {
				w.log.Debug("Channel is closed")
				return nil
			}
			lang := DetectLang(message.Text, w.langConfidence)

			indexCtx, cancel := context.WithTimeout(ctx, w.timeout)
			err := w.index.Index(indexCtx, message, lang)
			cancel()
			if err != nil {
				w.log.Warn("Indexing failed", "id", message.ID, "room", message.Room, "error", err)
			}
		}
	}
}

// DetectLang returns the ISO 639-1 code of text, or "" when the detection
// confidence is below minConfidence.
func DetectLang(text string, minConfidence float64) string {
	info := whatlanggo.Detect(text)
	if info.Lang < 0 || info.Confidence < minConfidence {
		return ""
	}
	return info.Lang.Iso6391()
}
