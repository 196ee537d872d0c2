package render

import (
	"encoding/json"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/nfrund/livedash/internal/topicmgr"
)

// TopicDisplay represents a topic for display purposes
type TopicDisplay struct {
	Name        string `json:"name"`
	Direction   string `json:"direction"`
	Scope       string `json:"scope"`
	Component   string `json:"component,omitempty"`
	Description string `json:"description"`
	Example     string `json:"example,omitempty"`
}

func display(t topicmgr.Topic) TopicDisplay {
	return TopicDisplay{
		Name:        t.Name(),
		Direction:   string(t.Direction()),
		Scope:       string(t.Scope()),
		Component:   t.Component(),
		Description: t.Description(),
		Example:     t.Example(),
	}
}

// TopicsTable renders topics as a bordered table.
func TopicsTable(topics []topicmgr.Topic) string {
	if len(topics) == 0 {
		return metaStyle.Render("No topics found") + "\n"
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("NAME", "DIRECTION", "DESCRIPTION", "EXAMPLE")
	for _, topic := range topics {
		d := display(topic)
		dir := d.Direction
		if dir == "" {
			dir = "-"
		}
		t.Row(d.Name, dir, truncateString(d.Description, 48), truncateString(d.Example, 40))
	}
	return t.String() + "\n"
}

// TopicsJSON writes topics in JSON format
func TopicsJSON(w io.Writer, topics []topicmgr.Topic) error {
	displays := make([]TopicDisplay, len(topics))
	for i, t := range topics {
		displays[i] = display(t)
	}
	output := struct {
		Topics []TopicDisplay `json:"topics"`
		Count  int            `json:"count"`
	}{
		Topics: displays,
		Count:  len(displays),
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

// truncateString truncates a string to maxLen characters, adding "..." if truncated
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}
