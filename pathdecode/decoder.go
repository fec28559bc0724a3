// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package pathdecode projects FASTA and FASTQ records onto a compacted de
// Bruijn graph. Each record is turned into one or more paths, each an ordered
// list of (unitig, strand) steps in which consecutive k-mers that walk along
// the same unitig are collapsed into a single step.
package pathdecode

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cdbgpath/encoding/gfa"
	"github.com/grailbio/cdbgpath/kmer"
	"github.com/grailbio/cdbgpath/kmerindex"
)

// Index is the subset of kmerindex.Index used by the decoder.
type Index interface {
	// Lookup finds the location of a k-mer, or returns false.
	Lookup(km kmer.Kmer) (kmerindex.Location, bool)
	// KmerLength returns k.
	KmerLength() int
}

// Opts controls decoding.
type Opts struct {
	// Break causes a record to be split into a new segment at every run of
	// non-nucleotide bytes (e.g. N) that follows a non-empty segment.
	Break bool
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{}

// Segment is one path produced from a record.
type Segment struct {
	// Record is the 0-based index of the record in the input stream.
	Record int
	// Index is the 0-based index of the segment within the record. It is
	// always 0 unless Opts.Break is set.
	Index int
	// Steps is the run-length compressed path. It is empty only for segment 0
	// of a record that contains no k-mer, e.g. one shorter than k.
	Steps []gfa.Step
}

// state is the position of the decoder within the FASTA/FASTQ grammar.
type state uint8

const (
	// Before the first record, or after the quality string of a FASTQ record.
	awaitingHeader state = iota
	// In a '>' or '@' line.
	inHeader
	// In the sequence lines of a record.
	inSequence
	// In the '+' line of a FASTQ record.
	inSeparator
	// In the quality lines of a FASTQ record.
	inQuality
)

// Decoder turns records into paths. A Decoder may be reused for many
// streams, but it is not thread safe. Create one Decoder per goroutine; they
// can all share one Index.
type Decoder struct {
	idx  Index
	opts Opts
	w    kmer.Window

	st        state
	lineStart bool

	// State of the current record.
	record  int // -1 before the first record
	fastq   bool
	segs    []Segment
	seg     int
	steps   []gfa.Step
	last    kmerindex.Location
	hasLast bool
	seqLen  int // # of sequence bytes seen, excluding line terminators
	qualLen int // # of quality bytes seen
}

// NewDecoder creates a decoder that queries idx.
func NewDecoder(idx Index, opts Opts) *Decoder {
	return &Decoder{idx: idx, opts: opts, w: kmer.NewWindow(idx.KmerLength())}
}

// Decode reads records from r until io.EOF, and calls emit once per record
// with the record's segments, in input order. Every record yields at least
// segment 0, so record indices have no gaps. The slice passed to emit is only
// valid during the call.
//
// Decode stops at the first error, which is either an error from r, an error
// returned by emit, ctx.Err() (checked at every record header), or an
// errors.NotExist error if a k-mer of the input does not occur in the index.
// Nothing is emitted for the record in which the error occurred.
func (d *Decoder) Decode(ctx context.Context, r io.ByteReader, emit func([]Segment) error) error {
	d.st = awaitingHeader
	d.lineStart = true
	d.record = -1
	for {
		b, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		record := d.record
		if err := d.step(b, emit); err != nil {
			return err
		}
		if d.record != record {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
	if d.record >= 0 {
		return d.finishRecord(emit)
	}
	return nil
}

// step advances the state machine by one byte.
func (d *Decoder) step(b byte, emit func([]Segment) error) error {
	atLineStart := d.lineStart
	d.lineStart = b == '\n'
	switch d.st {
	case awaitingHeader:
		if atLineStart && (b == '>' || b == '@') {
			return d.startRecord(b, emit)
		}
	case inHeader:
		if b == '\n' {
			d.st = inSequence
		}
	case inSequence:
		switch {
		case b == '\n' || b == '\r':
			// Line terminators; multi-line sequences are joined.
		case atLineStart && (b == '>' || b == '@'):
			return d.startRecord(b, emit)
		case atLineStart && b == '+' && d.fastq:
			d.st = inSeparator
		default:
			d.seqLen++
			return d.push(b, d.opts.Break)
		}
	case inSeparator:
		if b == '\n' {
			d.st = inQuality
			if d.seqLen == 0 {
				d.st = awaitingHeader
			}
		}
	case inQuality:
		if b != '\n' && b != '\r' {
			if d.qualLen++; d.qualLen >= d.seqLen {
				d.st = awaitingHeader
			}
		}
	}
	return nil
}

// startRecord closes the current record, if any, and opens a new one whose
// header begins with b.
func (d *Decoder) startRecord(b byte, emit func([]Segment) error) error {
	if d.record >= 0 {
		if err := d.finishRecord(emit); err != nil {
			return err
		}
	}
	d.record++
	d.fastq = b == '@'
	d.segs = d.segs[:0]
	d.seg = 0
	d.steps = d.steps[:0]
	d.hasLast = false
	d.seqLen, d.qualLen = 0, 0
	d.w.Reset()
	d.st = inHeader
	return nil
}

// closeSegment moves the open steps, if any, into a new segment.
func (d *Decoder) closeSegment() {
	if len(d.steps) == 0 {
		return
	}
	steps := make([]gfa.Step, len(d.steps))
	copy(steps, d.steps)
	d.segs = append(d.segs, Segment{Record: d.record, Index: d.seg, Steps: steps})
	d.seg++
	d.steps = d.steps[:0]
}

// finishRecord closes the open segment and emits the record. A record without
// any k-mer is emitted as one empty segment. Empty segments after a break are
// dropped.
func (d *Decoder) finishRecord(emit func([]Segment) error) error {
	d.closeSegment()
	if len(d.segs) == 0 {
		d.segs = append(d.segs, Segment{Record: d.record})
	}
	return emit(d.segs)
}

// push feeds one sequence byte to the k-mer window. If brk is set, a
// non-nucleotide byte closes the open segment.
func (d *Decoder) push(b byte, brk bool) error {
	if !d.w.Push(b) {
		if brk {
			// The next segment starts with its own step, even on the same
			// unitig.
			d.closeSegment()
			d.hasLast = false
		}
		return nil
	}
	if !d.w.Full() {
		return nil
	}
	km := d.w.Forward()
	loc, ok := d.idx.Lookup(km)
	if !ok {
		seq := kmer.Spell(km, d.w.Len())
		return errors.E(errors.NotExist, fmt.Sprintf("record %d: kmer %s (reverse complement %s) not found in the graph",
			d.record, seq, kmer.ReverseComplementString(seq)))
	}
	d.appendStep(loc)
	return nil
}

// appendStep adds a step for loc unless loc continues the walk along the
// unitig of the previous step. A walk continues while the position keeps
// increasing on the forward strand, or keeps decreasing on the reverse
// strand, relative to the position at which the step was added.
func (d *Decoder) appendStep(loc kmerindex.Location) {
	if d.hasLast && loc.RID == d.last.RID && loc.Strand == d.last.Strand {
		if loc.Strand == kmerindex.Forward && loc.Pos > d.last.Pos {
			return
		}
		if loc.Strand == kmerindex.Reverse && loc.Pos < d.last.Pos {
			return
		}
	}
	d.steps = append(d.steps, gfa.Step{ID: uint32(loc.RID), Reverse: loc.Strand == kmerindex.Reverse})
	d.last = loc
	d.hasLast = true
}

// DecodeSequence projects a bare sequence onto the graph. Non-nucleotide
// bytes reset the k-mer window; they never split the path.
func (d *Decoder) DecodeSequence(seq string) ([]gfa.Step, error) {
	d.record = 0
	d.segs = d.segs[:0]
	d.steps = d.steps[:0]
	d.hasLast = false
	d.w.Reset()
	for i := 0; i < len(seq); i++ {
		if err := d.push(seq[i], false); err != nil {
			return nil, err
		}
	}
	steps := make([]gfa.Step, len(d.steps))
	copy(steps, d.steps)
	return steps, nil
}
