package transformations

import (
	"bytes"
	"errors"
	"fmt"

	ast "secwaf/secrule/ast"
)

// Errors for misuse of a StreamState.
var (
	ErrStreamClosed   = errors.New("stream state is closed")
	ErrStreamFinished = errors.New("stream has already seen its end")
	ErrForeignStream  = errors.New("stream state was opened by a different pipeline")
)

// UnsupportedTransformationError is returned when a pipeline is asked to run a transformation it has no implementation for.
type UnsupportedTransformationError struct {
	Transformation ast.Transformation
}

func (e *UnsupportedTransformationError) Error() string {
	return fmt.Sprintf("unsupported transformation %v", e.Transformation)
}

// StageError is returned when a stage of a pipeline cannot process its input.
type StageError struct {
	Transformation ast.Transformation
	Err            error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("transformation %v failed: %v", e.Transformation, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Pipeline is an ordered list of transformations. A Pipeline is immutable and may be used by many goroutines at the same time.
type Pipeline struct {
	tt        []ast.Transformation
	factories []func() stage
}

// NewPipeline validates the transformations and creates a pipeline for them.
func NewPipeline(tt []ast.Transformation) (p *Pipeline, err error) {
	p = &Pipeline{
		tt:        append([]ast.Transformation(nil), tt...),
		factories: make([]func() stage, len(tt)),
	}

	for i, t := range tt {
		f, ok := registry[t]
		if !ok {
			p = nil
			err = &UnsupportedTransformationError{Transformation: t}
			return
		}
		p.factories[i] = f
	}

	return
}

// Len is the number of transformations in the pipeline.
func (p *Pipeline) Len() int {
	return len(p.tt)
}

// Transformations returns a copy of the configured transformations.
func (p *Pipeline) Transformations() []ast.Transformation {
	return append([]ast.Transformation(nil), p.tt...)
}

// Evaluate runs the whole input through all transformations.
// changed is set if any single transformation altered its input, even if a later one altered it back.
func (p *Pipeline) Evaluate(in []byte) (out []byte, changed bool, err error) {
	out = in
	if len(p.factories) == 0 {
		return
	}

	var next []byte
	for i, f := range p.factories {
		s := f()
		next, err = s.feed(nil, out, true)
		s.release()
		if err != nil {
			out = nil
			changed = false
			err = &StageError{Transformation: p.tt[i], Err: err}
			return
		}

		if !bytes.Equal(out, next) {
			changed = true
		}
		out = next
	}

	return
}

// StreamState is the resumable state of one value flowing through a pipeline in chunks. There is exactly one slot per transformation, in pipeline order.
// A StreamState must only be used by one goroutine at a time.
type StreamState struct {
	pipeline *Pipeline
	slots    []stage
	bufs     [][]byte
	finished bool
	closed   bool
}

// OpenStream creates the state for streaming a new value through the pipeline.
func (p *Pipeline) OpenStream() *StreamState {
	st := &StreamState{
		pipeline: p,
		slots:    make([]stage, len(p.factories)),
		bufs:     make([][]byte, len(p.factories)),
	}
	for i, f := range p.factories {
		st.slots[i] = f()
	}
	return st
}

// Finished tells whether the stream has seen its end.
func (st *StreamState) Finished() bool {
	return st.finished
}

// Close releases all per-transformation state. It is fine to close a stream that never saw its end, and to close it more than once.
func (st *StreamState) Close() {
	if st.closed {
		return
	}
	for i, s := range st.slots {
		s.release()
		st.slots[i] = nil
	}
	st.slots = nil
	st.bufs = nil
	st.closed = true
}

// EvaluateStream feeds the next chunk of a value through the pipeline, and returns the output that could be decided so far.
// Stages may hold back bytes until later chunks. When endOfStream is set, everything is flushed, and the stream cannot be fed any more.
// produced tells whether this call emitted any output.
// After a stage error the stream is broken and should be closed.
func (p *Pipeline) EvaluateStream(chunk []byte, st *StreamState, endOfStream bool) (out []byte, produced bool, err error) {
	if st.closed {
		err = ErrStreamClosed
		return
	}
	if st.pipeline != p || len(st.slots) != len(p.factories) {
		err = ErrForeignStream
		return
	}
	if st.finished {
		err = ErrStreamFinished
		return
	}

	if endOfStream {
		st.finished = true
	}

	in := chunk
	for i, s := range st.slots {
		// Each slot has a scratch buffer for its output, reused between chunks. The final stage writes to a fresh slice since it is handed to the caller.
		var dst []byte
		if i < len(st.slots)-1 {
			dst = st.bufs[i][:0]
		}

		dst, err = s.feed(dst, in, endOfStream)
		if err != nil {
			st.finished = true
			err = &StageError{Transformation: p.tt[i], Err: err}
			return
		}

		if i < len(st.slots)-1 {
			st.bufs[i] = dst
		}
		in = dst
	}

	if len(st.slots) == 0 {
		in = append([]byte(nil), chunk...)
	}

	out = in
	produced = len(out) > 0
	return
}
