// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pathdecode

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cdbgpath/encoding/fastx"
	"github.com/grailbio/cdbgpath/encoding/gfa"
	"github.com/grailbio/cdbgpath/kmer"
	"github.com/grailbio/cdbgpath/kmerindex"
	"github.com/grailbio/cdbgpath/unitig"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

// scriptedIndex returns locs in call order, regardless of the k-mer asked.
// A zero Location means a miss.
type scriptedIndex struct {
	k    int
	locs []kmerindex.Location
	n    int
}

func (s *scriptedIndex) KmerLength() int { return s.k }

func (s *scriptedIndex) Lookup(kmer.Kmer) (kmerindex.Location, bool) {
	loc := s.locs[s.n]
	s.n++
	return loc, loc != kmerindex.Location{}
}

func fwd(rid unitig.ID, pos uint32) kmerindex.Location {
	return kmerindex.Location{RID: rid, Pos: pos, Strand: kmerindex.Forward}
}

func rev(rid unitig.ID, pos uint32) kmerindex.Location {
	return kmerindex.Location{RID: rid, Pos: pos, Strand: kmerindex.Reverse}
}

// scriptedSeq returns a sequence that produces n windows of length k.
func scriptedSeq(k, n int) string {
	return strings.Repeat("A", k+n-1)
}

func decodeScripted(t *testing.T, locs []kmerindex.Location) string {
	const k = 4
	idx := &scriptedIndex{k: k, locs: locs}
	steps, err := NewDecoder(idx, DefaultOpts).DecodeSequence(scriptedSeq(k, len(locs)))
	require.NoError(t, err)
	expect.EQ(t, idx.n, len(locs))
	return gfa.FormatSteps(steps)
}

func TestRunLengthCompression(t *testing.T) {
	var locs []kmerindex.Location
	for i := 0; i < 10; i++ {
		locs = append(locs, fwd(5, uint32(10+i)))
	}
	for i := 0; i < 5; i++ {
		locs = append(locs, rev(7, uint32(20-i)))
	}
	expect.EQ(t, decodeScripted(t, locs), "5+,7-")
}

func TestMonotonicAdjacency(t *testing.T) {
	for _, test := range []struct {
		locs []kmerindex.Location
		want string
	}{
		{[]kmerindex.Location{fwd(3, 10), fwd(3, 11), fwd(3, 5)}, "3+,3+"},
		{[]kmerindex.Location{fwd(3, 10), fwd(3, 10)}, "3+,3+"},
		{[]kmerindex.Location{rev(3, 10), rev(3, 9), rev(3, 12)}, "3-,3-"},
		{[]kmerindex.Location{rev(3, 10), rev(3, 10)}, "3-,3-"},
		{[]kmerindex.Location{fwd(3, 10), rev(3, 9)}, "3+,3-"},
		{[]kmerindex.Location{fwd(3, 10), fwd(4, 11), fwd(3, 12)}, "3+,4+,3+"},
		// The position is compared with the one at which the step started.
		{[]kmerindex.Location{fwd(3, 10), fwd(3, 20), fwd(3, 15)}, "3+"},
	} {
		expect.EQ(t, decodeScripted(t, test.locs), test.want)
	}
}

func TestMiss(t *testing.T) {
	const k = 4
	idx := &scriptedIndex{k: k, locs: []kmerindex.Location{fwd(1, 3), fwd(1, 4), {}}}
	in := ">r0\n" + scriptedSeq(k, 2) + "\n>r1\n" + scriptedSeq(k, 1) + "\n"
	var got []Segment
	err := NewDecoder(idx, DefaultOpts).Decode(context.Background(), strings.NewReader(in), func(segs []Segment) error {
		got = append(got, segs...)
		return nil
	})
	expect.True(t, errors.Is(errors.NotExist, err))
	expect.True(t, strings.Contains(err.Error(), "record 1: kmer AAAA (reverse complement TTTT)"), err.Error())
	require.Equal(t, 1, len(got))
	expect.EQ(t, got[0].Record, 0)

	_, err = NewDecoder(&scriptedIndex{k: k, locs: []kmerindex.Location{{}}}, DefaultOpts).DecodeSequence("ACGT")
	expect.True(t, errors.Is(errors.NotExist, err))
}

func TestEmitError(t *testing.T) {
	const k = 4
	idx := &scriptedIndex{k: k, locs: []kmerindex.Location{fwd(1, 3)}}
	err := NewDecoder(idx, DefaultOpts).Decode(context.Background(), strings.NewReader(">r\nACGT\n"), func([]Segment) error {
		return io.ErrShortWrite
	})
	expect.EQ(t, err, io.ErrShortWrite)
}

func randomSeq(r *rand.Rand, n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = "ACGT"[r.Intn(4)]
	}
	return string(buf)
}

// testGraph creates two unitigs from a random 200bp genome g: u1 = g[0:100]
// and u2 = g[80:200], overlapping by k-1 bases. g maps to "1+,2+" and its
// reverse complement to "2-,1-".
func testGraph(t *testing.T) (g string, store *unitig.Store, idx *kmerindex.Index) {
	const k = 21
	g = randomSeq(rand.New(rand.NewSource(0)), 200)
	store = unitig.NewStore([]string{g[0:100], g[80:200]})
	idx, err := kmerindex.Build(store, kmerindex.Opts{KmerLength: k, Parallelism: 2})
	require.NoError(t, err)
	return g, store, idx
}

type decodedSegment struct {
	Record, Index int
	Path          string
}

func decodeAll(t *testing.T, idx Index, opts Opts, r io.ByteReader) []decodedSegment {
	var got []decodedSegment
	err := NewDecoder(idx, opts).Decode(context.Background(), r, func(segs []Segment) error {
		for _, seg := range segs {
			got = append(got, decodedSegment{seg.Record, seg.Index, gfa.FormatSteps(seg.Steps)})
		}
		return nil
	})
	require.NoError(t, err)
	return got
}

func decodeString(t *testing.T, idx Index, opts Opts, in string) []decodedSegment {
	return decodeAll(t, idx, opts, strings.NewReader(in))
}

func TestDecodeFASTA(t *testing.T) {
	g, _, idx := testGraph(t)
	defer idx.Close()
	in := ">r0 forward\n" + g[:100] + "\n" + g[100:] + "\n" +
		">r1 reverse\n" + kmer.ReverseComplementString(g) + "\n" +
		">r2 too short\nACGT\n" +
		">r3 lower case, CRLF\r\n" + strings.ToLower(g[150:]) + "\r\n"
	expect.EQ(t, decodeString(t, idx, DefaultOpts, in), []decodedSegment{
		{0, 0, "1+,2+"},
		{1, 0, "2-,1-"},
		{2, 0, ""},
		{3, 0, "2+"},
	})
}

func TestDecodeRecordWithoutKmer(t *testing.T) {
	g, _, idx := testGraph(t)
	defer idx.Close()
	in := ">r0\nNNNNNNNNNNNNNNNNNNNNNNNNNNNNNN\n>r1\n\n>r2\n" + g[:30] + "\n"
	for _, opts := range []Opts{{}, {Break: true}} {
		expect.EQ(t, decodeString(t, idx, opts, in), []decodedSegment{
			{0, 0, ""},
			{1, 0, ""},
			{2, 0, "1+"},
		}, "opts %+v", opts)
	}
	expect.EQ(t, decodeString(t, idx, DefaultOpts, "@q0\nACGT\n+\nIIII\n"), []decodedSegment{
		{0, 0, ""},
	})
}

func TestDecodeBreak(t *testing.T) {
	g, _, idx := testGraph(t)
	defer idx.Close()
	in := ">r0\n" + g[:60] + "NNNN" + g[60:] + "\n"
	expect.EQ(t, decodeString(t, idx, Opts{Break: true}, in), []decodedSegment{
		{0, 0, "1+"},
		{0, 1, "1+,2+"},
	})
	expect.EQ(t, decodeString(t, idx, Opts{}, in), []decodedSegment{
		{0, 0, "1+,2+"},
	})
	// A leading or trailing N run does not open an empty segment.
	expect.EQ(t, decodeString(t, idx, Opts{Break: true}, ">r0\nNN"+g[:60]+"NN\n"), []decodedSegment{
		{0, 0, "1+"},
	})
	// Both runs lie on unitig 1. The second segment starts its own step.
	in = ">r0\n" + g[:40] + "NNN" + g[40:90] + "\n>r1\n" + g[:40] + "N" + g[60:120] + "\n"
	expect.EQ(t, decodeString(t, idx, Opts{Break: true}, in), []decodedSegment{
		{0, 0, "1+"},
		{0, 1, "1+"},
		{1, 0, "1+"},
		{1, 1, "1+,2+"},
	})
	expect.EQ(t, decodeString(t, idx, Opts{}, in), []decodedSegment{
		{0, 0, "1+"},
		{1, 0, "1+,2+"},
	})
}

func TestDecodeCanceled(t *testing.T) {
	g, _, idx := testGraph(t)
	defer idx.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewDecoder(idx, DefaultOpts).Decode(ctx, strings.NewReader(">r0\n"+g+"\n>r1\n"+g+"\n"),
		func([]Segment) error {
			t.Fatal("nothing should be emitted")
			return nil
		})
	expect.EQ(t, err, context.Canceled)
}

func TestDecodeWindowReset(t *testing.T) {
	// No window may span the separator.
	idx := &scriptedIndex{k: 4, locs: []kmerindex.Location{fwd(1, 3), fwd(2, 3)}}
	steps, err := NewDecoder(idx, DefaultOpts).DecodeSequence("ACGT NACGT")
	assert.NoError(t, err)
	expect.EQ(t, idx.n, 2)
	expect.EQ(t, gfa.FormatSteps(steps), "1+,2+")
}

func TestDecodeFASTQ(t *testing.T) {
	g, _, idx := testGraph(t)
	defer idx.Close()
	qual := func(n int) string {
		// Quality strings may contain '@', '>' and bases.
		return strings.Repeat("@AC>+G", n)[:n]
	}
	in := "@q0\n" + g[:50] + "\n+\n" + qual(50) + "\n" +
		"@q1\n" + g[100:] + "\n+q1\n" + qual(100) + "\n" +
		"@q2\n" + g[:40] + "\n" + g[40:80] + "\n+\n" + qual(30) + "\n" + qual(50) + "\n"
	expect.EQ(t, decodeString(t, idx, DefaultOpts, in), []decodedSegment{
		{0, 0, "1+"},
		{1, 0, "2+"},
		{2, 0, "1+"},
	})
}

func TestDecodeChunkSizeInvariance(t *testing.T) {
	g, _, idx := testGraph(t)
	defer idx.Close()
	in := ">r0\n" + g[:60] + "NN" + g[60:] + "\n>r1\n" + kmer.ReverseComplementString(g) + "\n" +
		"@q2\n" + g[100:] + "\n+\n" + strings.Repeat("@", 100) + "\n"
	want := decodeAll(t, idx, Opts{Break: true}, bytes.NewReader([]byte(in)))
	expect.EQ(t, len(want), 4)
	for _, chunkSize := range []int{1, 2, 3, 7, 64, fastx.DefaultChunkSize} {
		got := decodeAll(t, idx, Opts{Break: true}, fastx.NewChunkReader(strings.NewReader(in), chunkSize))
		expect.EQ(t, got, want, "chunk size %d", chunkSize)
	}
}

func TestDecodeMissingKmer(t *testing.T) {
	g, _, idx := testGraph(t)
	defer idx.Close()
	err := NewDecoder(idx, DefaultOpts).Decode(context.Background(), strings.NewReader(">r0\n"+g[:50]+strings.Repeat("A", 30)+"\n"),
		func([]Segment) error {
			t.Fatal("nothing should be emitted")
			return nil
		})
	expect.True(t, errors.Is(errors.NotExist, err))
}

func TestDecodeSequence(t *testing.T) {
	g, _, idx := testGraph(t)
	defer idx.Close()
	d := NewDecoder(idx, Opts{Break: true})
	steps, err := d.DecodeSequence(g[:60] + "N" + g[60:])
	assert.NoError(t, err)
	expect.EQ(t, gfa.FormatSteps(steps), "1+,2+")
	steps, err = d.DecodeSequence(kmer.ReverseComplementString(g))
	assert.NoError(t, err)
	expect.EQ(t, gfa.FormatSteps(steps), "2-,1-")
}

func TestReconstruct(t *testing.T) {
	g, store, idx := testGraph(t)
	defer idx.Close()
	for _, seq := range []string{
		g,
		kmer.ReverseComplementString(g),
		g[:70] + "NN" + g[90:],
	} {
		got, err := Reconstruct(idx, store, seq)
		assert.NoError(t, err)
		expect.EQ(t, got, seq)
	}
	_, err := Reconstruct(idx, store, strings.Repeat("C", 25))
	expect.True(t, errors.Is(errors.NotExist, err))
}
