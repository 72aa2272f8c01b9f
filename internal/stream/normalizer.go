package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ent0n29/chatrelay/internal/protocol"
)

const defaultChunkSize = 4096

// ErrClientGone wraps a failed event write; nothing more can reach the client.
var ErrClientGone = errors.New("stream: client write failed")

// TransportError reports that the backend connection failed mid-stream.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream: backend read failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// EndReason says why a successful stream stopped.
type EndReason string

const (
	EndInlineDone EndReason = "inline_done"
	EndEOF        EndReason = "eof"
)

// Outcome summarises a normalized stream.
type Outcome struct {
	Text      string
	Fragments int
	Reason    EndReason
}

// EmitFunc writes one output event to the client.
type EmitFunc func(protocol.Event) error

// Normalizer drives one backend response body to completion.
type Normalizer struct {
	Extractor Extractor
	Emit      EmitFunc
	// Finalize receives the assembled assistant text when the stream ends
	// successfully. It runs before Done is emitted and never on failure.
	Finalize  func(text string)
	ChunkSize int
}

// Run consumes body until the extractor signals completion or the transport
// ends. On a transport failure a single Error event is emitted, the partial
// text is discarded and a *TransportError is returned. Write failures and
// context cancellation end the stream without further events.
func (n *Normalizer) Run(ctx context.Context, body io.Reader) (Outcome, error) {
	size := n.ChunkSize
	if size <= 0 {
		size = defaultChunkSize
	}
	buf := make([]byte, size)

	var (
		acc strings.Builder
		out Outcome
	)

	forward := func(res Result) error {
		for _, fragment := range res.Fragments {
			acc.WriteString(fragment)
			out.Fragments++
			if err := n.Emit(protocol.Fragment(fragment)); err != nil {
				return fmt.Errorf("%w: %v", ErrClientGone, err)
			}
		}
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		nr, readErr := body.Read(buf)
		if nr > 0 {
			res := n.Extractor.Feed(buf[:nr])
			if err := forward(res); err != nil {
				return out, err
			}
			if res.Done {
				out.Reason = EndInlineDone
				return n.finish(out, acc.String())
			}
		}

		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			if f, ok := n.Extractor.(Flusher); ok {
				if err := forward(f.Flush()); err != nil {
					return out, err
				}
			}
			out.Reason = EndEOF
			return n.finish(out, acc.String())
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		terr := &TransportError{Err: readErr}
		if err := n.Emit(protocol.Error(terr.Error())); err != nil {
			return out, fmt.Errorf("%w: %v", ErrClientGone, err)
		}
		return out, terr
	}
}

func (n *Normalizer) finish(out Outcome, text string) (Outcome, error) {
	out.Text = text
	if n.Finalize != nil {
		n.Finalize(text)
	}
	if err := n.Emit(protocol.Done()); err != nil {
		return out, fmt.Errorf("%w: %v", ErrClientGone, err)
	}
	return out, nil
}
