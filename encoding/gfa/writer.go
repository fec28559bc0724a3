// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package gfa

import (
	"io"
	"strconv"

	"github.com/grailbio/base/tsv"
	gunsafe "github.com/grailbio/base/unsafe"
)

// Step is one oriented segment reference of a path.
type Step struct {
	// ID is the segment identifier.
	ID uint32
	// Reverse is true if the path visits the reverse complement of the segment.
	Reverse bool
}

func appendStep(buf []byte, s Step) []byte {
	buf = strconv.AppendUint(buf, uint64(s.ID), 10)
	if s.Reverse {
		return append(buf, '-')
	}
	return append(buf, '+')
}

func appendSteps(buf []byte, steps []Step) []byte {
	for i, s := range steps {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = appendStep(buf, s)
	}
	return buf
}

// FormatSteps renders steps as a comma-separated P-record segment list.
func FormatSteps(steps []Step) string {
	return string(appendSteps(nil, steps))
}

// PathWriter writes P records. Thread compatible.
type PathWriter struct {
	w   *tsv.Writer
	buf []byte
}

// NewPathWriter creates a PathWriter that writes to out. Flush must be called
// after the last record.
func NewPathWriter(out io.Writer) *PathWriter {
	return &PathWriter{w: tsv.NewWriter(out)}
}

// Write emits one P record:
//
//   P	<name>	<id><+|->,<id><+|->,...	*
//
// The overlaps field is always "*".
func (w *PathWriter) Write(name string, steps []Step) error {
	w.buf = appendSteps(w.buf[:0], steps)
	w.w.WriteString("P")
	w.w.WriteString(name)
	w.w.WriteString(gunsafe.BytesToString(w.buf))
	w.w.WriteString("*")
	return w.w.EndLine()
}

// Flush flushes buffered records to the underlying writer.
func (w *PathWriter) Flush() error { return w.w.Flush() }
