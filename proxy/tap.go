package proxy

import (
	"bytes"
	"io"
	"net/http"

	"github.com/llmlab/llmlab/internal/pool"
	"github.com/llmlab/llmlab/provider"
)

// tapBufPool recycles the 4 KiB chunks every streamed response is read
// into, so a busy proxy doesn't allocate one per request.
var tapBufPool = pool.NewSlicePool[byte](4096)

// tapRetainCeiling bounds how many upstream bytes the tap keeps in its
// retained copy of the stream. It is a ceiling on retained bytes only:
// every byte is still relayed to the client and fed line-by-line to the
// accumulator.
const tapRetainCeiling = 1 << 20

// tap relays an upstream SSE stream to the client one read at a time —
// synchronous read-then-write, so a stalled client read naturally stalls
// the next upstream read (end-to-end back-pressure) without an
// intervening buffer or goroutine. It feeds every complete line to the
// accumulator as it arrives, so usage metadata is recovered from the
// whole stream, and keeps a copy of up to tapRetainCeiling bytes.
type tap struct {
	retained bytes.Buffer
	acc      provider.StreamAccumulator
	lineBuf  bytes.Buffer
}

func newTap(acc provider.StreamAccumulator) *tap {
	return &tap{acc: acc}
}

// Copy reads src in chunks, writing each chunk to dst and flushing
// immediately, while feeding every line to the accumulator as it
// arrives. Returns once src is exhausted or returns a non-EOF error.
func (t *tap) Copy(dst io.Writer, flusher http.Flusher, src io.Reader) error {
	buf := tapBufPool.Get()[:4096]
	defer tapBufPool.Put(buf)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if _, err := dst.Write(chunk); err != nil {
				return err
			}
			if flusher != nil {
				flusher.Flush()
			}
			t.retain(chunk)
		}
		if readErr != nil {
			if readErr == io.EOF {
				t.flushAccumulatorLines()
				return nil
			}
			return readErr
		}
	}
}

func (t *tap) retain(chunk []byte) {
	if room := tapRetainCeiling - t.retained.Len(); room > 0 {
		kept := chunk
		if len(kept) > room {
			kept = kept[:room]
		}
		t.retained.Write(kept)
	}
	t.lineBuf.Write(chunk)
	t.drainLines()
}

// drainLines feeds every complete line currently buffered to the
// accumulator, leaving any trailing partial line for the next chunk.
func (t *tap) drainLines() {
	for {
		data := t.lineBuf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			return
		}
		line := bytes.TrimRight(data[:idx], "\r")
		t.acc.Feed(line)
		t.lineBuf.Next(idx + 1)
	}
}

// flushAccumulatorLines feeds any final unterminated line once the
// stream has closed.
func (t *tap) flushAccumulatorLines() {
	if t.lineBuf.Len() > 0 {
		t.acc.Feed(bytes.TrimRight(t.lineBuf.Bytes(), "\r"))
		t.lineBuf.Reset()
	}
}

// Usage returns whatever usage the accumulator observed across the
// whole stream.
func (t *tap) Usage() (inputTokens, outputTokens int, model string, ok bool) {
	return t.acc.Usage()
}
