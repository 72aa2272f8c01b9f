package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ent0n29/chatrelay/internal/session"
	"github.com/ent0n29/chatrelay/internal/stream"
)

// Mock echoes the latest user turn as an Ollama-style stream. It needs no
// network and is meant for local development.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Open(ctx context.Context, history []session.Turn) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, word := range splitKeepSpace(buildMockReply(history)) {
		if err := enc.Encode(map[string]any{"message": map[string]string{"role": "assistant", "content": word}, "done": false}); err != nil {
			return nil, fmt.Errorf("encode mock frame: %w", err)
		}
	}
	if err := enc.Encode(map[string]any{"done": true}); err != nil {
		return nil, fmt.Errorf("encode mock frame: %w", err)
	}
	return io.NopCloser(&buf), nil
}

func (m *Mock) NewExtractor(onError stream.DecodeErrorFunc) stream.Extractor {
	return stream.NewLineExtractor(decodeOllamaFrame, 0, onError)
}

func buildMockReply(history []session.Turn) string {
	var last, previous string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != session.RoleUser {
			continue
		}
		if last == "" {
			last = strings.TrimSpace(history[i].Content)
			continue
		}
		previous = strings.TrimSpace(history[i].Content)
		break
	}
	if last == "" {
		return "I am listening."
	}
	if previous == "" {
		return fmt.Sprintf("I heard you: %s", last)
	}
	return fmt.Sprintf("I heard you: %s\nI also remember: %s", last, previous)
}

// splitKeepSpace splits after each space so the pieces concatenate back to s.
func splitKeepSpace(s string) []string {
	var out []string
	for s != "" {
		i := strings.IndexByte(s, ' ')
		if i < 0 {
			out = append(out, s)
			break
		}
		out = append(out, s[:i+1])
		s = s[i+1:]
	}
	return out
}
