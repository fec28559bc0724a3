// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package gfa reads segment records from, and writes path records to, GFA
// (Graphical Fragment Assembly) files. See
// https://github.com/GFA-spec/GFA-spec/blob/master/GFA1.md.  Briefly, a GFA file
// is a sequence of tab-separated records whose first field is the record type:
//
// H	VN:Z:1.0
// S	1	ACGTACGGTA
// S	2	GTAACCA
// L	1	+	2	+	4M
// P	reads#0#0	1+,2+	*
//
// Only segment (S) records are interpreted by Scanner; all other record types
// are skipped.
package gfa

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// Segment is one S record.
type Segment struct {
	// Name is the segment name, the second field of the record.
	Name string
	// Seq is the segment sequence, the third field of the record.
	Seq string
}

// MaxLineLength is the longest GFA line Scanner accepts. Unitigs of compacted
// de Bruijn graphs are occasionally megabases long.
const MaxLineLength = 1 << 30

// Scanner reads segment records. Scanners are not threadsafe.
type Scanner struct {
	b     *bufio.Scanner
	err   error
	nLine int
}

// NewScanner creates a Scanner that reads raw GFA data from r.
func NewScanner(r io.Reader) *Scanner {
	b := bufio.NewScanner(r)
	b.Buffer(make([]byte, 0, 64<<10), MaxLineLength)
	return &Scanner{b: b}
}

// Scan reads the next segment record into seg. It returns false at the end of
// the input, or on error. Once Scan returns false, it never returns true
// again. The caller should check Err afterwards.
func (s *Scanner) Scan(seg *Segment) bool {
	if s.err != nil {
		return false
	}
	for s.b.Scan() {
		s.nLine++
		line := s.b.Bytes()
		if len(line) == 0 || line[0] != 'S' {
			continue
		}
		fields := bytes.Fields(line)
		if string(fields[0]) != "S" {
			continue
		}
		if len(fields) < 3 || string(fields[2]) == "*" {
			s.err = errors.Errorf("gfa line %d: segment record lacks a sequence field", s.nLine)
			return false
		}
		seg.Name = string(fields[1])
		seg.Seq = string(fields[2])
		return true
	}
	if err := s.b.Err(); err != nil {
		s.err = errors.Wrapf(err, "gfa line %d", s.nLine+1)
	}
	return false
}

// Err returns the scanning error, if any.
func (s *Scanner) Err() error { return s.err }
