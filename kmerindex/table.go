// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package kmerindex

import (
	"fmt"
	"reflect"
	"unsafe"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/cdbgpath/kmer"
	"golang.org/x/sys/unix"
	"v.io/x/lib/vlog"
)

// The index is physically sharded 2^n ways, using the lower bits of
// farmhash(kmer) to pick the shard. Within one shard, the upper bits of the
// same hash pick the first bucket of a vanilla linear-probing hashtable.

const (
	minShards    = 16
	maxShards    = 4096
	hugePageSize = 2 << 20 // size of Linux transparent hugetlb.
	loadFactor   = 2       // table size >= loadFactor * #kmers
	entrySize    = unsafe.Sizeof(entry{})
)

// entry is one slot of a shard table. kmer == kmer.Invalid marks an empty slot.
type entry struct {
	kmer kmer.Kmer
	loc  Location
}

// indexShard is one shard of Index.
type indexShard struct {
	sizeShift uint // == 64 - log2(len(table))
	table     []entry

	// mapped is the anon-mapped region backing the table, if the table is large
	// enough to benefit from transparent hugepages. nil otherwise.
	mapped []byte
}

func hashKmer(k kmer.Kmer) uint64 {
	return farm.Hash64WithSeed(nil, uint64(k))
}

// numShards picks the shard count for the given parallelism: the smallest
// power of two >= 4*parallelism, clamped to [minShards, maxShards].
func numShards(parallelism int) int {
	n := minShards
	for n < parallelism*4 && n < maxShards {
		n *= 2
	}
	return n
}

// allocTable creates a table of the given size. Tables of at least a hugepage
// are created in an anon-mapped memory region, with madvise(MADV_HUGEPAGE) to
// reduce TLB misses. The second return value is the mapped region, or nil if
// the table lives on the Go heap. The table contents are zero.
func allocTable(size int) ([]entry, []byte, error) {
	nBytes := size * int(entrySize)
	if nBytes < hugePageSize {
		return make([]entry, size), nil, nil
	}
	data, err := unix.Mmap(-1, 0, nBytes+hugePageSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, errors.E(err, fmt.Sprintf("mmap kmer table of %d bytes", nBytes))
	}
	if err := unix.Madvise(data, unix.MADV_HUGEPAGE); err != nil {
		// Transparent hugepages may be disabled; the table still works.
		vlog.VI(1).Infof("madvise(MADV_HUGEPAGE): %v", err)
	}
	// Round the start up to a hugePageSize boundary.
	start := ((uintptr(unsafe.Pointer(&data[0]))-1)/hugePageSize + 1) * hugePageSize
	var table []entry
	hdr := (*reflect.SliceHeader)(unsafe.Pointer(&table))
	hdr.Data = start
	hdr.Len = size
	hdr.Cap = size
	return table, data, nil
}

// init fills the shard from input. The caller must guarantee that all the
// kmers in the input belong to this shard. Thread compatible.
func (s *indexShard) init(input map[kmer.Kmer]Location) error {
	minSize := (len(input) + 1) * loadFactor
	// Compute shift = ceil(log2(minSize)), size = 2^shift
	size := 1
	shift := uint(0)
	for size < minSize {
		size *= 2
		shift++
	}
	table, mapped, err := allocTable(size)
	if err != nil {
		return err
	}
	for i := range table {
		table[i].kmer = kmer.Invalid
	}
	sizeShift := 64 - shift
	for km, loc := range input {
		i := int(hashKmer(km) >> sizeShift)
		// Linear-probe to find the place for this kmer. The table is at most
		// half full, so this terminates.
		for table[i].kmer != kmer.Invalid {
			if i++; i == size {
				i = 0
			}
		}
		table[i] = entry{kmer: km, loc: loc}
	}
	*s = indexShard{sizeShift: sizeShift, table: table, mapped: mapped}
	return nil
}

// each calls fn for every kmer stored in the shard, in table order.
func (s *indexShard) each(fn func(km kmer.Kmer, loc Location)) {
	for i := range s.table {
		if ent := &s.table[i]; ent.kmer != kmer.Invalid {
			fn(ent.kmer, ent.loc)
		}
	}
}
