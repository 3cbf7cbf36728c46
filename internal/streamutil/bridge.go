package streamutil

import (
	"context"
	"io"
)

// chunkBufferSize bounds the number of in-flight chunks buffered between a
// PipeWriter and its consumer, per spec.md §5 ("do not introduce unbounded
// queues").
const chunkBufferSize = 4

// PipeWriter is the write side of a byte-chunk stream bridge: ordinary
// synchronous writes become Chunks delivered to the paired ByteStream.
type PipeWriter struct {
	ch     chan Chunk
	closed bool
}

// NewBytePipe returns a PipeWriter and the ByteStream fed by writes to it,
// bridging blocking producer code into the stream primitives (spec.md §4.1).
func NewBytePipe() (*PipeWriter, ByteStream) {
	ch := make(chan Chunk, chunkBufferSize)
	return &PipeWriter{ch: ch}, NewByteStream(ch)
}

// Write implements io.Writer. Each call becomes one Chunk; the caller
// controls chunk boundaries by controlling write sizes.
func (w *PipeWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, io.ErrClosedPipe
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	w.ch <- Chunk{Data: buf}
	return len(p), nil
}

// Close ends the stream cleanly: the consumer sees end-of-stream with no
// error.
func (w *PipeWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	close(w.ch)
	return nil
}

// CloseWithError ends the stream by delivering err as its terminal Chunk;
// the consumer observes it as a read error.
func (w *PipeWriter) CloseWithError(err error) error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.ch <- Chunk{Err: err}
	close(w.ch)
	return nil
}

// readChunkSize bounds how many bytes FromReader reads per Chunk.
const readChunkSize = 64 * 1024

// FromReader reads r in the background and returns the ByteStream of its
// contents, closing the stream cleanly on io.EOF or with the underlying
// error otherwise. r is never closed; the caller owns it.
func FromReader(ctx context.Context, r io.Reader) ByteStream {
	w, stream := NewBytePipe()
	go func() {
		buf := make([]byte, readChunkSize)
		for {
			if err := ctx.Err(); err != nil {
				w.CloseWithError(err)
				return
			}
			n, err := r.Read(buf)
			if n > 0 {
				if _, writeErr := w.Write(buf[:n]); writeErr != nil {
					return
				}
			}
			if err != nil {
				if err == io.EOF {
					w.Close()
				} else {
					w.CloseWithError(err)
				}
				return
			}
		}
	}()
	return stream
}

// StreamReader adapts a ByteStream into a blocking io.Reader, for code that
// must interface with synchronous I/O (e.g. database/sql drivers reading a
// COPY stream). EOF is a clean stream close; an embedded error is surfaced
// as the Read error.
type StreamReader struct {
	stream  ByteStream
	pending []byte
}

// NewStreamReader returns a StreamReader over s.
func NewStreamReader(s ByteStream) *StreamReader {
	return &StreamReader{stream: s}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		chunk, ok := <-r.stream.chunks
		if !ok {
			return 0, io.EOF
		}
		if chunk.Err != nil {
			return 0, chunk.Err
		}
		r.pending = chunk.Data
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
