package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/nfrund/livedash/internal/domain"
)

// Format is a transcript file format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// FormatFor picks the format from the file extension: .json is JSON,
// anything else is plain text.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatText
}

// Transcript is the history of one conversation.
type Transcript struct {
	Self        string               `json:"self"`
	Counterpart string               `json:"counterpart"`
	ExportedAt  time.Time            `json:"exportedAt"`
	Messages    []domain.ChatMessage `json:"messages"`

	// Location renders text timestamps; nil means local time.
	Location *time.Location `json:"-"`
}

// Render encodes the transcript in format.
func (t Transcript) Render(format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		if t.Messages == nil {
			t.Messages = []domain.ChatMessage{}
		}
		data, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode transcript: %w", err)
		}
		return append(data, '\n'), nil
	case FormatText:
		return t.text(), nil
	}
	return nil, fmt.Errorf("transcript format %q: %w", format, domain.ErrInvalidPayload)
}

func (t Transcript) text() []byte {
	loc := t.Location
	if loc == nil {
		loc = time.Local
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "Conversation between @%s and @%s\n", t.Self, t.Counterpart)
	fmt.Fprintf(&b, "Exported %s, %d messages\n\n", t.ExportedAt.In(loc).Format(time.RFC3339), len(t.Messages))
	for _, m := range t.Messages {
		ts := time.UnixMilli(m.Timestamp).In(loc).Format("2006-01-02 15:04:05")
		fmt.Fprintf(&b, "[%s] @%s: %s\n", ts, m.From, m.Text)
	}
	return b.Bytes()
}

// Export renders t in the format matching path and saves it.
func Export(ctx context.Context, store Store, path string, t Transcript) (int64, error) {
	if t.ExportedAt.IsZero() {
		t.ExportedAt = time.Now()
	}
	data, err := t.Render(FormatFor(path))
	if err != nil {
		return 0, err
	}
	return store.Save(ctx, path, bytes.NewReader(data))
}
