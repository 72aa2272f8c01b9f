package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ent0n29/chatrelay/internal/session"
	"github.com/ent0n29/chatrelay/internal/stream"
)

const ollamaName = "ollama"

type OllamaConfig struct {
	URL           string
	Model         string
	MaxFrameBytes int
}

// Ollama talks to a local model server that streams newline-delimited JSON.
type Ollama struct {
	cfg    OllamaConfig
	client *http.Client
}

func NewOllama(cfg OllamaConfig, client *http.Client) *Ollama {
	cfg.URL = strings.TrimSpace(cfg.URL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	return &Ollama{cfg: cfg, client: client}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChunk struct {
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

func (o *Ollama) Name() string { return ollamaName }

func (o *Ollama) Open(ctx context.Context, history []session.Turn) (io.ReadCloser, error) {
	if o.cfg.URL == "" || o.cfg.Model == "" {
		return nil, fmt.Errorf("ollama url and model are required: %w", ErrMissingCredentials)
	}
	return postStream(ctx, o.client, ollamaName, o.cfg.URL, buildOllamaRequest(o.cfg.Model, history))
}

func (o *Ollama) NewExtractor(onError stream.DecodeErrorFunc) stream.Extractor {
	return stream.NewLineExtractor(decodeOllamaFrame, o.cfg.MaxFrameBytes, onError)
}

func buildOllamaRequest(model string, history []session.Turn) ollamaRequest {
	msgs := make([]ollamaMessage, 0, len(history))
	for _, turn := range history {
		role := "user"
		if turn.Role == session.RoleAssistant {
			role = "assistant"
		}
		msgs = append(msgs, ollamaMessage{Role: role, Content: turn.Content})
	}
	return ollamaRequest{Model: model, Messages: msgs, Stream: true}
}

func decodeOllamaFrame(frame []byte) (string, bool, error) {
	var chunk ollamaChunk
	if err := json.Unmarshal(frame, &chunk); err != nil {
		return "", false, err
	}
	if chunk.Error != "" {
		return "", false, fmt.Errorf("ollama stream error: %s", chunk.Error)
	}
	var text string
	if chunk.Message != nil {
		text = chunk.Message.Content
	}
	return text, chunk.Done, nil
}
