package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// EventKind identifies output event variants.
type EventKind string

const (
	EventFragment EventKind = "fragment"
	EventDone     EventKind = "done"
	EventError    EventKind = "error"
)

// DoneMarker is the payload of the terminal SSE unit.
const DoneMarker = "[DONE]"

// Event is one unit of the uniform output sequence sent to a client.
// Text carries the fragment for EventFragment and the message for EventError.
type Event struct {
	Kind EventKind `json:"type"`
	Text string    `json:"data,omitempty"`
}

func Fragment(text string) Event { return Event{Kind: EventFragment, Text: text} }

func Done() Event { return Event{Kind: EventDone} }

func Error(message string) Event { return Event{Kind: EventError, Text: message} }

// ChatRequest is the inbound body of POST /chat and of each websocket message.
type ChatRequest struct {
	SessionID string `json:"sessionId" validate:"required,nonblank"`
	Message   string `json:"message" validate:"required,nonblank"`
}

var ErrInvalidRequest = errors.New("invalid chat request")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("nonblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// Validate reports ErrInvalidRequest when a required field is missing or blank.
func (r ChatRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s is required", ErrInvalidRequest, jsonFieldName(verrs[0].Field()))
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// ParseChatRequest decodes and validates a raw JSON request.
func ParseChatRequest(raw []byte) (ChatRequest, error) {
	var req ChatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return ChatRequest{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return ChatRequest{}, err
	}
	return req, nil
}

func jsonFieldName(field string) string {
	switch field {
	case "SessionID":
		return "sessionId"
	case "Message":
		return "message"
	default:
		return field
	}
}
