package stream

import "bytes"

// Result is what an Extractor produced from one chunk.
type Result struct {
	Fragments []string
	// Done is set when the backend signalled completion inline. No further
	// input should be read once it is observed.
	Done bool
}

// Extractor turns raw backend chunks into text fragments.
type Extractor interface {
	Feed(chunk []byte) Result
}

// Flusher is implemented by extractors that hold a partial frame which should
// still be decoded once the transport reaches end of stream.
type Flusher interface {
	Flush() Result
}

// FrameDecoder decodes one complete backend frame. An empty fragment with a
// nil error means the frame carried no text.
type FrameDecoder func(frame []byte) (fragment string, done bool, err error)

// DecodeErrorFunc is told about frames that were skipped.
type DecodeErrorFunc func(frame []byte, err error)

// LineExtractor handles newline-delimited JSON. A line split across chunks is
// carried over until its newline arrives or the stream ends.
type LineExtractor struct {
	decode  FrameDecoder
	onError DecodeErrorFunc
	maxLine int
	pending []byte
	done    bool
}

func NewLineExtractor(decode FrameDecoder, maxLine int, onError DecodeErrorFunc) *LineExtractor {
	return &LineExtractor{decode: decode, maxLine: maxLine, onError: onError}
}

func (e *LineExtractor) Feed(chunk []byte) Result {
	if e.done {
		return Result{Done: true}
	}
	e.pending = append(e.pending, chunk...)

	var res Result
	for {
		i := bytes.IndexByte(e.pending, '\n')
		if i < 0 {
			break
		}
		line := e.pending[:i]
		e.pending = e.pending[i+1:]
		if e.decodeInto(&res, line) {
			return res
		}
	}

	if e.maxLine > 0 && len(e.pending) > e.maxLine {
		e.report(e.pending, ErrFrameTooLarge)
		e.pending = nil
	}
	return res
}

func (e *LineExtractor) Flush() Result {
	var res Result
	if e.done {
		res.Done = true
		return res
	}
	line := e.pending
	e.pending = nil
	e.decodeInto(&res, line)
	return res
}

// decodeInto reports whether the frame ended the stream.
func (e *LineExtractor) decodeInto(res *Result, line []byte) bool {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return false
	}
	fragment, done, err := e.decode(line)
	if err != nil {
		e.report(line, err)
		return false
	}
	if fragment != "" {
		res.Fragments = append(res.Fragments, fragment)
	}
	if done {
		e.done = true
		e.pending = nil
		res.Done = true
	}
	return done
}

func (e *LineExtractor) report(frame []byte, err error) {
	if e.onError != nil {
		e.onError(frame, err)
	}
}

// ObjectExtractor handles JSON objects that are concatenated without
// separators and split at arbitrary byte offsets.
type ObjectExtractor struct {
	decode  FrameDecoder
	onError DecodeErrorFunc
	scanner *ObjectScanner
	done    bool
}

func NewObjectExtractor(decode FrameDecoder, maxFrame int, onError DecodeErrorFunc) *ObjectExtractor {
	return &ObjectExtractor{
		decode:  decode,
		onError: onError,
		scanner: NewObjectScanner(maxFrame),
	}
}

func (e *ObjectExtractor) Feed(chunk []byte) Result {
	if e.done {
		return Result{Done: true}
	}
	e.scanner.Write(chunk)

	var res Result
	for {
		frame, ok, err := e.scanner.Next()
		if err != nil {
			e.report(nil, err)
			continue
		}
		if !ok {
			return res
		}
		fragment, done, err := e.decode(frame)
		if err != nil {
			e.report(frame, err)
			continue
		}
		if fragment != "" {
			res.Fragments = append(res.Fragments, fragment)
		}
		if done {
			e.done = true
			res.Done = true
			return res
		}
	}
}

func (e *ObjectExtractor) report(frame []byte, err error) {
	if e.onError != nil {
		e.onError(frame, err)
	}
}

var (
	_ Extractor = (*LineExtractor)(nil)
	_ Flusher   = (*LineExtractor)(nil)
	_ Extractor = (*ObjectExtractor)(nil)
)
