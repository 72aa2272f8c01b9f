package stream

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/chatrelay/internal/protocol"
)

// chunkReader returns one chunk per Read, then err (io.EOF when nil).
type chunkReader struct {
	chunks []string
	err    error
	reads  int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.reads >= len(r.chunks) {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[r.reads])
	r.reads++
	return n, nil
}

type recorder struct {
	events    []protocol.Event
	finalized []string
	failAt    int
}

func (r *recorder) emit(ev protocol.Event) error {
	if r.failAt > 0 && len(r.events)+1 == r.failAt {
		return errors.New("broken pipe")
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) finalize(text string) {
	r.finalized = append(r.finalized, text)
}

func (r *recorder) normalizer(e Extractor) *Normalizer {
	return &Normalizer{Extractor: e, Emit: r.emit, Finalize: r.finalize}
}

func TestNormalizerInlineDoneStopsReading(t *testing.T) {
	rec := &recorder{}
	body := &chunkReader{chunks: []string{
		"{\"text\":\"ab\"}\n{\"done\":true}\n",
		"{\"text\":\"never read\"}\n",
	}}

	out, err := rec.normalizer(NewLineExtractor(testDecoder, 0, nil)).Run(context.Background(), body)
	require.NoError(t, err)

	assert.Equal(t, []protocol.Event{protocol.Fragment("ab"), protocol.Done()}, rec.events)
	assert.Equal(t, []string{"ab"}, rec.finalized)
	assert.Equal(t, 1, body.reads)
	assert.Equal(t, EndInlineDone, out.Reason)
	assert.Equal(t, "ab", out.Text)
}

func TestNormalizerEOFCountsAsSuccess(t *testing.T) {
	rec := &recorder{}
	body := &chunkReader{chunks: []string{`{"text":"Hel`, `"}{"text":"lo"}`}}

	out, err := rec.normalizer(NewObjectExtractor(testDecoder, 0, nil)).Run(context.Background(), body)
	require.NoError(t, err)

	assert.Equal(t, []protocol.Event{
		protocol.Fragment("Hel"),
		protocol.Fragment("lo"),
		protocol.Done(),
	}, rec.events)
	assert.Equal(t, []string{"Hello"}, rec.finalized)
	assert.Equal(t, EndEOF, out.Reason)
	assert.Equal(t, 2, out.Fragments)
}

func TestNormalizerFinalizesEmptyReply(t *testing.T) {
	rec := &recorder{}
	body := &chunkReader{chunks: []string{`{"meta":true}`}}

	_, err := rec.normalizer(NewObjectExtractor(testDecoder, 0, nil)).Run(context.Background(), body)
	require.NoError(t, err)

	assert.Equal(t, []protocol.Event{protocol.Done()}, rec.events)
	assert.Equal(t, []string{""}, rec.finalized)
}

func TestNormalizerFlushesTrailingLineAtEOF(t *testing.T) {
	rec := &recorder{}
	body := &chunkReader{chunks: []string{"{\"text\":\"a\"}\n{\"text\":\"b\"}"}}

	out, err := rec.normalizer(NewLineExtractor(testDecoder, 0, nil)).Run(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, "ab", out.Text)
	assert.Equal(t, []string{"ab"}, rec.finalized)
}

func TestNormalizerTransportErrorDiscardsPartialText(t *testing.T) {
	rec := &recorder{}
	body := &chunkReader{
		chunks: []string{"{\"text\":\"partial\"}\n"},
		err:    io.ErrUnexpectedEOF,
	}

	_, err := rec.normalizer(NewLineExtractor(testDecoder, 0, nil)).Run(context.Background(), body)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.Len(t, rec.events, 2)
	assert.Equal(t, protocol.Fragment("partial"), rec.events[0])
	assert.Equal(t, protocol.EventError, rec.events[1].Kind)
	assert.Empty(t, rec.finalized)
}

func TestNormalizerStopsWhenClientGone(t *testing.T) {
	rec := &recorder{failAt: 2}
	body := &chunkReader{chunks: []string{"{\"text\":\"a\"}\n", "{\"text\":\"b\"}\n", "{\"text\":\"c\"}\n"}}

	_, err := rec.normalizer(NewLineExtractor(testDecoder, 0, nil)).Run(context.Background(), body)

	assert.ErrorIs(t, err, ErrClientGone)
	assert.Equal(t, 2, body.reads)
	assert.Empty(t, rec.finalized)
}

func TestNormalizerHonoursCanceledContext(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rec.normalizer(NewLineExtractor(testDecoder, 0, nil)).Run(ctx, &chunkReader{})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.events)
	assert.Empty(t, rec.finalized)
}
