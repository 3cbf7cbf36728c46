// Package streamutil implements the stream primitives shared by every
// driver: lazy, finite byte-chunk streams, the named CSV streams built on
// top of them, synchronous bridges for blocking I/O, and bounded-parallelism
// consumption of background work.
package streamutil

import "context"

// Chunk is one element of a ByteStream: either a buffer of bytes, or a
// terminal error. A stream produces at most one error, after which it is
// exhausted.
type Chunk struct {
	Data []byte
	Err  error
}

// ByteStream is a lazy, finite, non-restartable sequence of byte buffers.
// It is pull-based: a producer runs ahead only as far as its channel's
// buffer allows, then blocks until the consumer receives from Chunks().
type ByteStream struct {
	chunks <-chan Chunk
}

// NewByteStream wraps a channel of Chunks as a ByteStream. The channel must
// be closed by its producer after sending at most one Chunk with a non-nil
// Err.
func NewByteStream(chunks <-chan Chunk) ByteStream {
	return ByteStream{chunks: chunks}
}

// Chunks returns the underlying receive-only channel.
func (s ByteStream) Chunks() <-chan Chunk {
	return s.chunks
}

// ReadAll drains the stream into a single buffer, for use by drivers and
// tests working with data small enough to buffer in memory (e.g. schema
// JSON documents). It respects ctx cancellation between chunks.
func ReadAll(ctx context.Context, s ByteStream) ([]byte, error) {
	var out []byte
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok := <-s.chunks:
			if !ok {
				return out, nil
			}
			if chunk.Err != nil {
				return nil, chunk.Err
			}
			out = append(out, chunk.Data...)
		}
	}
}

// FromBytes returns a ByteStream that yields data as a single chunk and then
// closes cleanly. Useful for tests and for drivers bridging small in-memory
// payloads into the stream primitives.
func FromBytes(data []byte) ByteStream {
	ch := make(chan Chunk, 1)
	if len(data) > 0 {
		ch <- Chunk{Data: data}
	}
	close(ch)
	return NewByteStream(ch)
}
