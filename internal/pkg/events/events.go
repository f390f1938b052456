package events

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Event is a device event from either the HTTP event stream or a doorbell
// notification, normalised to one shape
type Event struct {
	Code   string
	Action string
	Index  string

	// Data is the decoded JSON payload when there was one, else the raw
	// string, else nil
	Data interface{}

	// Raw holds every key=value token of the part as received
	Raw map[string]string
}

// IndexInt returns the channel index, or 0 when it is missing or not a number
func (e Event) IndexInt() int {
	i, err := strconv.Atoi(e.Index)
	if err != nil {
		return 0
	}
	return i
}

// DataMap returns the payload as an object, or nil
func (e Event) DataMap() map[string]interface{} {
	if m, ok := e.Data.(map[string]interface{}); ok {
		return m
	}
	return nil
}

// Parse splits a chunk of the multipart event stream into events.  Parts
// without a Code are dropped; text with no boundary yields nothing.
func Parse(data []byte) []Event {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")

	var events []Event
	for _, part := range splitParts(text) {
		body := partBody(part)
		if body == "" {
			continue
		}

		raw, payload := parseBody(body)
		code, ok := raw["Code"]
		if !ok || code == "" {
			continue
		}

		e := Event{
			Code:   code,
			Action: raw["action"],
			Index:  raw["index"],
			Raw:    raw,
		}
		if payload != "" {
			e.Data = decodeData(payload)
		}

		events = append(events, e)
	}

	return events
}

// splitParts returns the text of every part that follows a "--" boundary line
func splitParts(text string) []string {
	var parts []string
	var current *strings.Builder

	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "--") {
			if current != nil {
				parts = append(parts, current.String())
			}
			current = &strings.Builder{}
			continue
		}

		if current != nil {
			current.WriteString(line)
			current.WriteByte('\n')
		}
	}

	if current != nil {
		parts = append(parts, current.String())
	}

	return parts
}

// partBody skips the part headers, which end at the first blank line
func partBody(part string) string {
	lines := strings.Split(part, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			return strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
		}
	}
	return ""
}

// parseBody splits the ';' separated key=value tokens.  A data= value runs
// to the end of the body since its JSON may contain ';'.
func parseBody(body string) (map[string]string, string) {
	raw := make(map[string]string)

	rest := body
	for {
		rest = strings.TrimLeft(rest, " \t\n")
		if rest == "" {
			break
		}

		var token string
		if strings.HasPrefix(rest, "data=") {
			token, rest = rest, ""
		} else if idx := strings.Index(rest, ";"); idx >= 0 {
			token, rest = rest[:idx], rest[idx+1:]
		} else {
			token, rest = rest, ""
		}

		token = strings.TrimSpace(token)
		eq := strings.Index(token, "=")
		if eq < 0 {
			continue
		}
		raw[token[:eq]] = token[eq+1:]
	}

	return raw, raw["data"]
}

func decodeData(s string) interface{} {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") {
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(trimmed), &m); err == nil {
			return m
		}
	}
	return s
}

// FromNotification builds an Event from a decoded doorbell event-list entry,
// which carries Code, Action, Index and Data as JSON fields
func FromNotification(m map[string]interface{}) Event {
	e := Event{Raw: make(map[string]string)}

	for k, v := range m {
		switch val := v.(type) {
		case string:
			e.Raw[k] = val
		case float64:
			e.Raw[k] = strconv.FormatFloat(val, 'f', -1, 64)
		}
	}

	e.Code = e.Raw["Code"]
	e.Action = e.Raw["Action"]
	e.Index = e.Raw["Index"]
	if d, ok := m["Data"]; ok {
		e.Data = d
	}

	return e
}
