package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ent0n29/chatrelay/internal/protocol"
)

// sseWriter frames output events as server-sent events and flushes each one.
//
//	Fragment: data: "<text>"
//	Done:     data: "[DONE]"
//	Error:    event: error / data: "<message>"
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	return &sseWriter{w: w, flusher: flusher}, nil
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func (s *sseWriter) WriteEvent(ev protocol.Event) error {
	var (
		name    string
		payload string
	)
	switch ev.Kind {
	case protocol.EventFragment:
		payload = ev.Text
	case protocol.EventDone:
		payload = protocol.DoneMarker
	case protocol.EventError:
		name = "error"
		payload = ev.Text
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if name != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", name); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
