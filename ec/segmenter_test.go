package ec

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSegmenterRoundTripAnyKOfN(t *testing.T) {
	const k, n = 8, 10
	seg, err := NewSegmenter(k, n)
	require.NoError(t, err)

	payload := make([]byte, 777*1024+3) // deliberately not k-aligned
	_, err = rand.Read(payload)
	require.NoError(t, err)

	shards, err := seg.Encode(payload)
	require.NoError(t, err)
	require.Len(t, shards, n)

	// property 1 (spec.md §8): any k of n reconstruct the original.
	subsets := [][]int{
		{1, 2, 3, 4, 5, 6, 7, 8},
		{3, 4, 5, 6, 7, 8, 9, 10},
		{1, 3, 5, 7, 9, 2, 4, 6},
	}
	for _, subset := range subsets {
		segments := make(map[int][]byte, k)
		for _, segNum := range subset {
			segments[segNum] = shards[segNum-1]
		}
		got, err := seg.Decode(segments, len(payload))
		require.NoError(t, err)
		require.Equal(t, payload, got)
	}
}

func TestSegmenterDecodeRejectsBelowK(t *testing.T) {
	seg, err := NewSegmenter(8, 10)
	require.NoError(t, err)
	shards, err := seg.Encode([]byte("hello world"))
	require.NoError(t, err)

	segments := map[int][]byte{1: shards[0], 2: shards[1]}
	_, err = seg.Decode(segments, 11)
	require.Error(t, err)
}

func TestSegmenterEncodeOutputIndexMatchesSegmentNum(t *testing.T) {
	// invariant 4 (spec.md §3): shard[i] must be sent to position i+1.
	seg, err := NewSegmenter(8, 10)
	require.NoError(t, err)
	payload := []byte("the segment sent to position i was produced at encoder output index i")
	shards, err := seg.Encode(payload)
	require.NoError(t, err)

	segments := map[int][]byte{}
	for i := 0; i < 8; i++ {
		segments[i+1] = shards[i]
	}
	got, err := seg.Decode(segments, len(payload))
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestNewSegmenterRejectsInvalidScheme(t *testing.T) {
	_, err := NewSegmenter(0, 10)
	require.Error(t, err)
	_, err = NewSegmenter(10, 10)
	require.Error(t, err)
}
