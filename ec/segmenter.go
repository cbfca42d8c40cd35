// Package ec provides the pure, dependency-free data-protection core of
// the gateway: the Segmenter (k-of-n erasure coder) and the Slicer
// (fixed-size chunking). Grounded on the teacher's ec/ec.go package,
// which documents the same "slice -> encode -> N segments" pipeline for
// AIStore's own erasure coding, generalized here from AIStore's
// data+parity bucket config to nimbus.io's simpler fixed per-cluster
// k-of-n (spec.md §4.2: "Choice of k and n is fixed per cluster").
/*
 * Copyright (c) 2024, nimbus.io contributors.
 */
package ec

import (
	"bytes"
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// Segmenter is nimbus.io's ZFEC 8-of-10 coder (spec.md §1), realized on
// top of klauspost/reedsolomon's systematic Reed-Solomon implementation:
// any k of the n shards it produces reconstruct the input, which is
// exactly ZFEC's contract. k is DataSlices, n-k is ParitySlices in the
// teacher's vocabulary; here both are fixed per cluster (spec.md §4.2).
type Segmenter struct {
	k, n int
	enc  reedsolomon.Encoder
}

// NewSegmenter builds a Segmenter for a cluster of n nodes requiring k
// of them to reconstruct an object (k = min_segments, spec.md §3).
func NewSegmenter(k, n int) (*Segmenter, error) {
	if k <= 0 || n <= k {
		return nil, fmt.Errorf("invalid erasure scheme: k=%d n=%d", k, n)
	}
	enc, err := reedsolomon.New(k, n-k)
	if err != nil {
		return nil, err
	}
	return &Segmenter{k: k, n: n, enc: enc}, nil
}

func (s *Segmenter) K() int { return s.k }
func (s *Segmenter) N() int { return s.n }

// Encode produces n segments from one slice's plaintext; segment i+1
// (1-indexed, i.e. shards[i]) is always sent to node position i+1
// (spec.md §3, invariant 4: "the segment sent to position i was
// produced at encoder output index i"). The final data shard is
// zero-padded to k-alignment by reedsolomon.Encoder.Split; the pad
// length is recoverable from the caller-recorded plaintext length
// passed back into Decode.
func (s *Segmenter) Encode(plaintext []byte) ([][]byte, error) {
	shards, err := s.enc.Split(plaintext)
	if err != nil {
		return nil, err
	}
	if err := s.enc.Encode(shards); err != nil {
		return nil, err
	}
	return shards, nil
}

// Decode reconstructs one slice's plaintext from any k of its n
// segments. segments maps 1-indexed segment_num to that segment's
// payload (spec.md §4.2: "keys are the original segment numbers").
// origLen is the slice's true plaintext length before k-alignment
// padding; decode(any k of encode(x)) == x once trimmed to origLen
// (spec.md's testable property 1).
func (s *Segmenter) Decode(segments map[int][]byte, origLen int) ([]byte, error) {
	if len(segments) < s.k {
		return nil, fmt.Errorf("insufficient segments: have %d, need %d", len(segments), s.k)
	}
	shards := make([][]byte, s.n)
	for segNum, payload := range segments {
		if segNum < 1 || segNum > s.n {
			return nil, fmt.Errorf("segment number %d out of range [1,%d]", segNum, s.n)
		}
		shards[segNum-1] = payload
	}
	if err := s.enc.ReconstructData(shards); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := s.enc.Join(&buf, shards, origLen); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
