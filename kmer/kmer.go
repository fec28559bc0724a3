// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package kmer

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/simd"
	gunsafe "github.com/grailbio/base/unsafe"
)

// Kmer is a compact encoding of up to MaxLength bases, two bits per base. The
// most recent base occupies the lowest two bits.
type Kmer uint64

// MaxLength is the longest k-mer that can be packed. It is one base short of
// the 64-bit width so that Invalid never collides with a real k-mer.
const MaxLength = 31

// Invalid is a sentinel kmer.
const Invalid = Kmer(0xffffffffffffffff)

// ValidateLength checks that k-mers of length k can be packed into a Kmer.
func ValidateLength(k int) error {
	if k < 1 || k > MaxLength {
		return errors.E(errors.Invalid, fmt.Sprintf("kmer length %d out of range [1, %d]", k, MaxLength))
	}
	return nil
}

// Mask returns the mask covering the low 2k bits.
func Mask(k int) Kmer {
	return ^(Kmer(0xffffffffffffffff) << Kmer(k*2 /*2==#bits per base*/))
}

// Spell decodes the low 2k bits of km back to upper-case bases.
func Spell(km Kmer, k int) string {
	var buf []byte
	simd.ResizeUnsafe(&buf, k)
	for i := k - 1; i >= 0; i-- {
		buf[i] = Base(uint8(km & 3))
		km >>= 2
	}
	return gunsafe.BytesToString(buf)
}

// ReverseComplementKmer returns the packed reverse complement of a k-mer of
// length k.
func ReverseComplementKmer(km Kmer, k int) Kmer {
	var rc Kmer
	for i := 0; i < k; i++ {
		rc = (rc << 2) | (3 - km&3)
		km >>= 2
	}
	return rc
}
