// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package kmerindex maps every k-mer of a set of unitigs, in both
// orientations, to the single place it occurs. The unitigs are expected to
// come from a compacted de Bruijn graph, where each k-mer occurs exactly once;
// Build fails if it observes otherwise.
package kmerindex

import (
	"fmt"

	"github.com/grailbio/cdbgpath/kmer"
	"github.com/grailbio/cdbgpath/unitig"
	"golang.org/x/sys/unix"
)

// Strand is the orientation in which a k-mer matches a unitig.
type Strand uint8

const (
	// Forward means the k-mer reads left to right on the unitig.
	Forward Strand = iota
	// Reverse means the k-mer is the reverse complement of a unitig k-mer.
	Reverse
)

// String returns "+" or "-".
func (s Strand) String() string {
	if s == Reverse {
		return "-"
	}
	return "+"
}

// Location is where a k-mer occurs.
//
// For Forward, Pos is the offset of the last base of the matching unitig
// window. For Reverse, Pos is the offset of the first base of the window,
// whose reverse complement is the k-mer. In both cases Pos is the unitig
// offset of the base that pairs with the last base of the k-mer.
type Location struct {
	RID    unitig.ID
	Pos    uint32
	Strand Strand
}

func (l Location) String() string {
	return fmt.Sprintf("%d%v@%d", l.RID, l.Strand, l.Pos)
}

func (l Location) less(o Location) bool {
	if l.RID != o.RID {
		return l.RID < o.RID
	}
	if l.Pos != o.Pos {
		return l.Pos < o.Pos
	}
	return l.Strand < o.Strand
}

// Opts controls index construction.
type Opts struct {
	// KmerLength is the k-mer length. It must be in [1, kmer.MaxLength].
	KmerLength int
	// Parallelism is the number of build workers. Values <= 0 mean
	// runtime.NumCPU().
	Parallelism int
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	KmerLength:  31,
	Parallelism: 0,
}

// Index is the central kmer -> location map. It is logically equivalent to
// map[kmer.Kmer]Location, but it is sharded by farmhash(kmer) and each shard is
// a flat open-addressing table, which keeps it compact and GC-free.
//
// An Index is immutable after Build or Load. Lookup is thread safe.
type Index struct {
	kmerLength int
	numUnitigs int
	nKmers     int
	shardMask  uint64
	shards     []indexShard
}

// KmerLength returns k.
func (idx *Index) KmerLength() int { return idx.kmerLength }

// NumUnitigs returns the number of unitigs the index was built from.
func (idx *Index) NumUnitigs() int { return idx.numUnitigs }

// Count returns the number of distinct k-mers in the index. It is twice the
// number of unitig windows, one per orientation.
func (idx *Index) Count() int { return idx.nKmers }

// Lookup finds the location of the given k-mer. It returns false if the k-mer
// does not occur in any unitig.
func (idx *Index) Lookup(km kmer.Kmer) (Location, bool) {
	if km == kmer.Invalid {
		return Location{}, false
	}
	h := hashKmer(km)
	s := &idx.shards[h&idx.shardMask]
	table := s.table
	i := int(h >> s.sizeShift)
	for {
		ent := &table[i]
		if ent.kmer == km {
			return ent.loc, true
		}
		if ent.kmer == kmer.Invalid {
			return Location{}, false
		}
		if i++; i == len(table) {
			i = 0
		}
	}
}

// Close releases the memory held by the index. The index must not be used
// afterwards.
func (idx *Index) Close() error {
	var err error
	for i := range idx.shards {
		s := &idx.shards[i]
		if s.mapped != nil {
			if e := unix.Munmap(s.mapped); e != nil && err == nil {
				err = e
			}
		}
		*s = indexShard{}
	}
	return err
}
