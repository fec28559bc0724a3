// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pathdecode

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/grailbio/cdbgpath/encoding/gfa"
)

// compressionSuffixes are removed from file names before the extension.
var compressionSuffixes = []string{".gz", ".bgz", ".zst", ".bz2"}

// RecordName derives the path name prefix for the records of a query file:
// the base name of the file, without a compression suffix and without one
// more extension. For example, "/data/reads.fq.gz" yields "reads", not
// "reads.fq": the compression suffix does not count as the extension, so
// reads.fq and reads.fq.gz name their records alike.
func RecordName(path string) string {
	name := filepath.Base(path)
	for _, suffix := range compressionSuffixes {
		if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	return name
}

// Emitter writes the segments of one query file as GFA P lines. The path name
// of a segment is "<name>#<record>#<segment>".
type Emitter struct {
	w    *gfa.PathWriter
	name string
	buf  []byte

	nRecords, nSegments int
}

// NewEmitter creates an emitter that writes to w. Name is usually
// RecordName(path).
func NewEmitter(w *gfa.PathWriter, name string) *Emitter {
	return &Emitter{w: w, name: name}
}

// Emit writes one P line per segment. It is suitable for Decoder.Decode.
func (e *Emitter) Emit(segs []Segment) error {
	for _, seg := range segs {
		e.buf = append(e.buf[:0], e.name...)
		e.buf = append(e.buf, '#')
		e.buf = strconv.AppendInt(e.buf, int64(seg.Record), 10)
		e.buf = append(e.buf, '#')
		e.buf = strconv.AppendInt(e.buf, int64(seg.Index), 10)
		if err := e.w.Write(string(e.buf), seg.Steps); err != nil {
			return err
		}
		e.nSegments++
	}
	e.nRecords++
	return nil
}

// Stats returns the number of records and segments written so far.
func (e *Emitter) Stats() (records, segments int) { return e.nRecords, e.nSegments }
