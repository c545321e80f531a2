package sseclient

import (
	"bufio"
	"io"
	"strings"
)

// Event is one dispatched server-sent event.
type Event struct {
	Type string
	Data string
}

// parseStream reads SSE frames from r and calls emit for every
// dispatched event, until r is exhausted or fails. Comment frames
// (keep-alives) and id/retry fields are consumed without dispatching.
//
// Wire format per frame: "event:" and one or more "data:" lines,
// terminated by a blank line. A frame with no data lines dispatches
// nothing; an absent event field defaults to "message".
func parseStream(r io.Reader, emit func(Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	var eventType string
	var data []string

	dispatch := func() {
		if len(data) > 0 {
			t := eventType
			if t == "" {
				t = "message"
			}
			emit(Event{Type: t, Data: strings.Join(data, "\n")})
		}
		eventType = ""
		data = nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			dispatch()
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			eventType = trimFieldValue(line, "event:")
		case strings.HasPrefix(line, "data:"):
			data = append(data, trimFieldValue(line, "data:"))
		case strings.HasPrefix(line, "id:"), strings.HasPrefix(line, "retry:"):
			// not used by this client
		}
	}
	return scanner.Err()
}

// trimFieldValue strips the field name and the single optional leading
// space the SSE format allows.
func trimFieldValue(line, field string) string {
	v := strings.TrimPrefix(line, field)
	return strings.TrimPrefix(v, " ")
}
