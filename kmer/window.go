// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package kmer

// Window is a rolling k-mer register. It tracks the last k bases pushed, in
// both the forward and the reverse-complement orientation. Any non-nucleotide
// byte empties the window.
//
// The zero value is not usable; create one with NewWindow.
type Window struct {
	k     int
	mask  Kmer
	shift Kmer // position of the most significant base, (k-1)*2.
	n     int  // # of valid bases accumulated, capped at k.

	forward, reverseComplement Kmer
}

// NewWindow creates a window of k bases.
//
// REQUIRES: ValidateLength(k) == nil
func NewWindow(k int) Window {
	return Window{
		k:     k,
		mask:  Mask(k),
		shift: Kmer(k-1) * 2,
	}
}

// Len returns k.
func (w *Window) Len() int { return w.k }

// Push appends one byte to the window. It returns false, after resetting the
// window, if b is not a nucleotide.
func (w *Window) Push(b byte) bool {
	bits := asciiToCode[b]
	if bits == InvalidCode {
		w.Reset()
		return false
	}
	w.forward = ((w.forward << 2) | Kmer(bits)) & w.mask
	w.reverseComplement = (w.reverseComplement >> 2) | (Kmer(ComplementCode(b)) << w.shift)
	if w.n < w.k {
		w.n++
	}
	return true
}

// Reset discards all the bases accumulated so far.
func (w *Window) Reset() {
	w.n = 0
	w.forward = 0
	w.reverseComplement = 0
}

// Full reports whether the last k pushes were all nucleotides.
func (w *Window) Full() bool { return w.n == w.k }

// Forward returns the k-mer formed by the last k bases.
//
// REQUIRES: Full()
func (w *Window) Forward() Kmer { return w.forward }

// ReverseComplement returns the reverse complement of Forward().
//
// REQUIRES: Full()
func (w *Window) ReverseComplement() Kmer { return w.reverseComplement }
