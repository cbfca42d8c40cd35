package ec

import (
	"io"

	"github.com/nimbus-io/gateway/cmn"
)

// DefaultSliceSize is the fixed slice size from spec.md §4.3: 1 MiB.
const DefaultSliceSize = 1 << 20

// Slicer lazily chunks an input stream into fixed-size slices, per
// spec.md §4.3. It pulls from the input only when Next is called, so a
// slow consumer (e.g. an Archiver waiting on N node acknowledgements
// between slices) naturally backpressures the HTTP request body reader
// — the realization of spec.md §9's "consumer backpressure must reach
// the NodeClients."
type Slicer struct {
	r           io.Reader
	sliceSize   int
	declaredLen int64
	remaining   int64
	done        bool
}

// NewSlicer wraps r, which is expected to yield exactly declaredLen
// bytes (the HTTP request's Content-Length, spec.md §4.3).
func NewSlicer(r io.Reader, declaredLen int64, sliceSize int) *Slicer {
	if sliceSize <= 0 {
		sliceSize = DefaultSliceSize
	}
	return &Slicer{r: r, sliceSize: sliceSize, declaredLen: declaredLen, remaining: declaredLen}
}

// Next returns the next slice and whether it is the last one. The final
// slice may be short (including empty, for a zero-length object) but is
// always emitted exactly once (spec.md §4.6: "there is always exactly
// one archive_final message"). Once the last slice has been returned,
// subsequent calls return io.EOF.
func (s *Slicer) Next() (chunk []byte, last bool, err error) {
	if s.done {
		return nil, true, io.EOF
	}

	want := s.sliceSize
	if int64(want) > s.remaining {
		want = int(s.remaining)
	}
	buf := make([]byte, want)
	n, err := io.ReadFull(s.r, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, false, err
	}
	if (err == io.EOF || err == io.ErrUnexpectedEOF) && int64(n) < s.remaining {
		return nil, false, cmn.ErrTruncatedInput
	}
	s.remaining -= int64(n)
	buf = buf[:n]

	if s.remaining > 0 {
		return buf, false, nil
	}

	// This was the last expected slice. Probe for extra bytes the
	// caller didn't declare (spec.md §4.3: "raises OversizedInput if
	// more bytes are available than declared").
	var probe [1]byte
	pn, perr := s.r.Read(probe[:])
	if pn > 0 {
		return nil, false, cmn.ErrOversizedInput
	}
	if perr != nil && perr != io.EOF {
		return nil, false, perr
	}
	s.done = true
	return buf, true, nil
}
