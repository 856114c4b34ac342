package service

import (
	"errors"
	"io"
	"iter"
	"sync/atomic"

	"gemini-proxy-go/internal/model"
)

// DefaultChunkSize is the read buffer used when no chunk size is configured.
const DefaultChunkSize = 32 * 1024

// ChunkStream wraps an upstream body as a single-pass sequence of chunks.
//
// Each Read result is yielded as soon as it returns, in order and without
// coalescing. The same buffer backs every chunk, so a chunk must not be
// retained past the next step. A read error is yielded once as a
// *model.StreamReadError and ends the sequence. The body is closed when the
// sequence ends, including when the consumer stops early; iterating a
// second time yields model.ErrStreamConsumed.
func ChunkStream(body io.ReadCloser, size int) iter.Seq2[[]byte, error] {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var used atomic.Bool

	return func(yield func([]byte, error) bool) {
		if !used.CompareAndSwap(false, true) {
			yield(nil, model.ErrStreamConsumed)
			return
		}
		defer func() { _ = body.Close() }()

		buf := make([]byte, size)
		var offset int64
		for {
			n, err := body.Read(buf)
			if n > 0 {
				offset += int64(n)
				if !yield(buf[:n], nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, &model.StreamReadError{Offset: offset, Cause: err})
				return
			}
		}
	}
}

// TranslateResponse maps an upstream response onto the value relayed to the
// client. Ownership of up.Body moves into the returned stream. The second
// result is the number of header values dropped.
func TranslateResponse(up *model.UpstreamResponse, chunkSize int) (*model.OutboundResponse, int) {
	header, dropped := TranslateResponseHeaders(up.Header)
	return &model.OutboundResponse{
		StatusCode: up.StatusCode,
		Header:     header,
		Body:       ChunkStream(up.Body, chunkSize),
	}, dropped
}
