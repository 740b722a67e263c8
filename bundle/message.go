package bundle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MidnightBSD/mport/version"
)

// MessageType names the action a message entry should be shown for
// (spec §4.5.1).
type MessageType string

const (
	MessageAlways  MessageType = "always"
	MessageInstall MessageType = "install"
	MessageRemove  MessageType = "remove"
	MessageUpgrade MessageType = "upgrade"
)

// Message is one entry of a package's pkg-message file.
type Message struct {
	Text           string      `json:"message"`
	Type           MessageType `json:"type"`
	MinimumVersion string      `json:"minimum_version,omitempty"`
	MaximumVersion string      `json:"maximum_version,omitempty"`
}

// ParseMessage decodes a pkg-message file's contents. Grounded on
// pkg_message.c's mport_load_pkg_msg: if the first non-space byte is
// '[' the file is a JSON array of {message,type,minimum_version,
// maximum_version} objects, otherwise the whole file is one
// always-show plain string.
func ParseMessage(data []byte) ([]Message, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}
	if trimmed[0] != '[' {
		return []Message{{Text: trimmed, Type: MessageAlways}}, nil
	}

	var msgs []Message
	if err := json.Unmarshal([]byte(trimmed), &msgs); err != nil {
		return nil, fmt.Errorf("bundle: parse pkg-message: %w", err)
	}
	for i := range msgs {
		if msgs[i].Type == "" {
			msgs[i].Type = MessageAlways
		}
	}
	return msgs, nil
}

// Select returns the text of every message in msgs whose type matches
// action and whose version window brackets previousVersion — an empty
// bound means unbounded on that side (spec §4.5.1). MessageAlways
// entries match every action.
func Select(msgs []Message, action MessageType, previousVersion string) []string {
	var out []string
	for _, m := range msgs {
		if m.Type != MessageAlways && m.Type != action {
			continue
		}
		if m.MinimumVersion != "" && version.Compare(previousVersion, m.MinimumVersion) < 0 {
			continue
		}
		if m.MaximumVersion != "" && version.Compare(previousVersion, m.MaximumVersion) > 0 {
			continue
		}
		out = append(out, m.Text)
	}
	return out
}
