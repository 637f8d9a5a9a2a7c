package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"hobby-relay/errors"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed topics/*
var defaultTopics embed.FS

// TopicData carries the result of the loading process including metadata for logging.
type TopicData struct {
	Words []string
	Lists []string
}

// TopicLoader is responsible for reading and parsing denied topics from a filesystem.
type TopicLoader struct {
	fs fs.FS
}

// NewTopicLoader creates a loader over the provided filesystem.
func NewTopicLoader(f fs.FS) *TopicLoader {
	return &TopicLoader{fs: f}
}

// NewDefaultTopicLoader reads the deny-lists shipped with the binary.
func NewDefaultTopicLoader() *TopicLoader {
	return NewTopicLoader(defaultTopics)
}

// LoadAll scans the given directory, identifying .txt files as topic lists
// and parsing their contents into a unique list of words.
func (l *TopicLoader) LoadAll(dir string) (*TopicData, error) {
	entries, err := fs.ReadDir(l.fs, dir)
	if err != nil {
		return nil, err
	}

	var lists []string
	uniqueWords := make(map[string]struct{})

	for _, entry := range entries {
		if entry.IsDir() {
			return nil, errors.ErrOnlyTopicFile
		}

		// Track the list name based on the filename (e.g., "politics.txt" -> "politics")
		lists = append(lists, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := fs.ReadFile(l.fs, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		// Use a scanner to handle different line endings (\n vs \r\n) correctly
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" && !strings.HasPrefix(line, "#") {
				uniqueWords[line] = struct{}{}
			}
		}

		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	if len(uniqueWords) == 0 {
		return nil, errors.ErrEmptyWords
	}

	words := make([]string, 0, len(uniqueWords))
	for w := range uniqueWords {
		words = append(words, w)
	}
	sort.Strings(words)

	return &TopicData{
		Words: words,
		Lists: lists,
	}, nil
}

// ParseTopics splits a comma separated deny-list as found in the environment.
func ParseTopics(raw string) []string {
	var topics []string
	for _, part := range strings.Split(raw, ",") {
		if t := strings.TrimSpace(part); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}
