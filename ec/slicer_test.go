package ec

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/nimbus-io/gateway/cmn"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, s *Slicer) ([][]byte, error) {
	t.Helper()
	var chunks [][]byte
	for {
		chunk, last, err := s.Next()
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, append([]byte(nil), chunk...))
		if last {
			return chunks, nil
		}
	}
}

func TestSlicerExactMultipleOfSliceSize(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 30)
	s := NewSlicer(strings.NewReader(payload), int64(len(payload)), 10)
	chunks, err := drain(t, s)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		require.Len(t, c, 10)
	}
}

func TestSlicerShortFinalChunk(t *testing.T) {
	payload := bytes.Repeat([]byte("y"), 25)
	s := NewSlicer(strings.NewReader(payload), int64(len(payload)), 10)
	chunks, err := drain(t, s)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	require.Len(t, chunks[2], 5)

	var got bytes.Buffer
	for _, c := range chunks {
		got.Write(c)
	}
	require.Equal(t, payload, got.String())
}

func TestSlicerZeroLengthObjectEmitsExactlyOneFinalSlice(t *testing.T) {
	s := NewSlicer(strings.NewReader(""), 0, 10)
	chunk, last, err := s.Next()
	require.NoError(t, err)
	require.True(t, last)
	require.Empty(t, chunk)

	_, _, err = s.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestSlicerTruncatedInput(t *testing.T) {
	s := NewSlicer(strings.NewReader("short"), 100, 10)
	_, _, err := s.Next()
	require.ErrorIs(t, err, cmn.ErrTruncatedInput)
}

func TestSlicerOversizedInput(t *testing.T) {
	payload := bytes.Repeat([]byte("z"), 25)
	s := NewSlicer(strings.NewReader(payload), 20, 10)

	chunk, last, err := s.Next()
	require.NoError(t, err)
	require.False(t, last)
	require.Len(t, chunk, 10)

	_, _, err = s.Next()
	require.ErrorIs(t, err, cmn.ErrOversizedInput)
}
