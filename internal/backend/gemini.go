package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ent0n29/chatrelay/internal/session"
	"github.com/ent0n29/chatrelay/internal/stream"
)

const geminiName = "gemini"

type GeminiConfig struct {
	BaseURL       string
	Model         string
	APIKey        string
	MaxFrameBytes int
}

// Gemini streams from the generateContent API. Without alt=sse the body is a
// JSON array whose elements arrive concatenated and split at arbitrary offsets.
type Gemini struct {
	cfg    GeminiConfig
	client *http.Client
}

func NewGemini(cfg GeminiConfig, client *http.Client) *Gemini {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	return &Gemini{cfg: cfg, client: client}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiChunk struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *Gemini) Name() string { return geminiName }

func (g *Gemini) Open(ctx context.Context, history []session.Turn) (io.ReadCloser, error) {
	if g.cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set: %w", ErrMissingCredentials)
	}
	return postStream(ctx, g.client, geminiName, g.endpoint(), buildGeminiRequest(history))
}

func (g *Gemini) NewExtractor(onError stream.DecodeErrorFunc) stream.Extractor {
	return stream.NewObjectExtractor(decodeGeminiFrame, g.cfg.MaxFrameBytes, onError)
}

func (g *Gemini) endpoint() string {
	q := url.Values{}
	q.Set("key", g.cfg.APIKey)
	return fmt.Sprintf("%s/models/%s:streamGenerateContent?%s", g.cfg.BaseURL, url.PathEscape(g.cfg.Model), q.Encode())
}

func buildGeminiRequest(history []session.Turn) geminiRequest {
	contents := make([]geminiContent, 0, len(history))
	for _, turn := range history {
		role := "user"
		if turn.Role == session.RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: turn.Content}},
		})
	}
	return geminiRequest{Contents: contents}
}

func decodeGeminiFrame(frame []byte) (string, bool, error) {
	var chunk geminiChunk
	if err := json.Unmarshal(frame, &chunk); err != nil {
		return "", false, err
	}
	if chunk.Error != nil {
		return "", false, fmt.Errorf("gemini stream error %d: %s", chunk.Error.Code, chunk.Error.Message)
	}
	if len(chunk.Candidates) == 0 || len(chunk.Candidates[0].Content.Parts) == 0 {
		return "", false, nil
	}
	return chunk.Candidates[0].Content.Parts[0].Text, false, nil
}
