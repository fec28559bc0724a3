// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package kmer implements the 2-bit nucleotide codec and packed k-mers shared
// by the unitig index and the path decoder.
package kmer

// InvalidCode is returned by Code for any byte that is not a nucleotide.
const InvalidCode = uint8(255)

var (
	asciiToCode           [256]uint8
	asciiToComplementCode [256]uint8
	asciiToComplement     [256]byte
	codeToBase            = [4]byte{'A', 'C', 'G', 'T'}
	codeToComplementBase  = [4]byte{'T', 'G', 'C', 'A'}
)

func init() {
	for i := range asciiToCode {
		asciiToCode[i] = InvalidCode
		asciiToComplementCode[i] = InvalidCode
		asciiToComplement[i] = 'N'
	}
	for code, bases := range []string{"Aa", "Cc", "Gg", "Tt"} {
		for _, ch := range []byte(bases) {
			asciiToCode[ch] = uint8(code)
			asciiToComplementCode[ch] = uint8(3 - code)
			asciiToComplement[ch] = codeToComplementBase[code]
		}
	}
}

// Code maps A, C, G, T (either case) to 0, 1, 2, 3. Every other byte,
// including newlines, 'N' and FASTQ quality characters, maps to InvalidCode.
func Code(b byte) uint8 { return asciiToCode[b] }

// ComplementCode returns the code of the complement of b, or InvalidCode.
func ComplementCode(b byte) uint8 { return asciiToComplementCode[b] }

// Base returns the upper-case base for a valid code.
//
// REQUIRES: code < 4
func Base(code uint8) byte { return codeToBase[code] }

// ComplementBase returns the upper-case complement of the base with the given
// code, e.g. 'T' for the code of 'A'.
//
// REQUIRES: code < 4
func ComplementBase(code uint8) byte { return codeToComplementBase[code] }

// ReverseComplement writes the reverse complement of src to dst. Bytes other
// than ACGTacgt are written as 'N'.
//
// It panics if len(dst) != len(src).
func ReverseComplement(dst, src []byte) {
	nByte := len(src)
	if len(dst) != nByte {
		panic("ReverseComplement requires len(dst) == len(src).")
	}
	for idx, invIdx := 0, nByte-1; idx != nByte; idx, invIdx = idx+1, invIdx-1 {
		dst[idx] = asciiToComplement[src[invIdx]]
	}
}

// ReverseComplementString is a convenience wrapper around ReverseComplement.
func ReverseComplementString(seq string) string {
	buf := make([]byte, len(seq))
	ReverseComplement(buf, []byte(seq))
	return string(buf)
}
