// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package kmerindex

import (
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/cdbgpath/kmer"
	"github.com/grailbio/cdbgpath/unitig"
)

// registrar collects kmer registrations from concurrent workers. It is sharded
// the same way as Index, with one lock per shard.
type registrar struct {
	mask   uint64
	shards []registrarShard
}

type registrarShard struct {
	mu    sync.Mutex
	kmers map[kmer.Kmer]Location
	// dups lists every location of kmers registered more than once.
	dups map[kmer.Kmer][]Location
}

func newRegistrar(nShard int) *registrar {
	return &registrar{
		mask:   uint64(nShard - 1),
		shards: make([]registrarShard, nShard),
	}
}

// register adds km -> loc. A kmer registered twice is recorded as a duplicate;
// the first location is kept. Thread safe.
func (r *registrar) register(km kmer.Kmer, loc Location) {
	s := &r.shards[hashKmer(km)&r.mask]
	s.mu.Lock()
	if s.kmers == nil {
		s.kmers = map[kmer.Kmer]Location{}
	}
	if prev, ok := s.kmers[km]; !ok {
		s.kmers[km] = loc
	} else {
		if s.dups == nil {
			s.dups = map[kmer.Kmer][]Location{}
		}
		if len(s.dups[km]) == 0 {
			s.dups[km] = append(s.dups[km], prev)
		}
		s.dups[km] = append(s.dups[km], loc)
	}
	s.mu.Unlock()
}

func (r *registrar) count() int {
	n := 0
	for i := range r.shards {
		n += len(r.shards[i].kmers)
	}
	return n
}

// duplicateError returns nil if every kmer was registered once. Otherwise it
// describes the smallest duplicated kmer and its two smallest locations, so
// that the report does not depend on the order of registration.
func (r *registrar) duplicateError(k int) error {
	var (
		nDup  int
		found bool
		minKm kmer.Kmer
		locs  []Location
	)
	for i := range r.shards {
		for km, l := range r.shards[i].dups {
			nDup++
			if !found || km < minKm {
				found, minKm, locs = true, km, l
			}
		}
	}
	if !found {
		return nil
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i].less(locs[j]) })
	a, b := locs[0], locs[1]
	if minKm == kmer.ReverseComplementKmer(minKm, k) {
		return errors.E(errors.Integrity, fmt.Sprintf(
			"kmer %s at %v is its own reverse complement; palindromic kmers are not unique for even k=%d (%d duplicate kmers in total)",
			kmer.Spell(minKm, k), b, k, nDup))
	}
	return errors.E(errors.Integrity, fmt.Sprintf(
		"kmer %s occurs at %v and %v; the unitigs do not form a compacted de Bruijn graph of k=%d (%d duplicate kmers in total)",
		kmer.Spell(minKm, k), a, b, k, nDup))
}

// freeze converts the registered kmers into an Index. It consumes r.
func (r *registrar) freeze(k, numUnitigs, parallelism int) (*Index, error) {
	idx := &Index{
		kmerLength: k,
		numUnitigs: numUnitigs,
		nKmers:     r.count(),
		shardMask:  r.mask,
		shards:     make([]indexShard, len(r.shards)),
	}
	err := traverse.Limit(parallelism).Each(len(r.shards), func(si int) error {
		kmers := r.shards[si].kmers
		r.shards[si].kmers = nil
		return idx.shards[si].init(kmers)
	})
	if err != nil {
		idx.Close()
		return nil, err
	}
	return idx, nil
}

func parallelism(opts Opts) int {
	if opts.Parallelism > 0 {
		return opts.Parallelism
	}
	return runtime.NumCPU()
}

// registerUnitig registers every kmer of seq, forward and reverse complement.
// Windows never span a non-ACGT base.
func registerUnitig(r *registrar, w *kmer.Window, rid unitig.ID, seq string) {
	k := w.Len()
	w.Reset()
	for i := 0; i < len(seq); i++ {
		if !w.Push(seq[i]) || !w.Full() {
			continue
		}
		r.register(w.Forward(), Location{RID: rid, Pos: uint32(i), Strand: Forward})
		r.register(w.ReverseComplement(), Location{RID: rid, Pos: uint32(i - k + 1), Strand: Reverse})
	}
}

// Build indexes every kmer of every unitig in the store. The unitig ID space
// is split evenly among opts.Parallelism workers.
//
// Build fails if opts.KmerLength is not representable, if a unitig is shorter
// than opts.KmerLength, or if any kmer (in either orientation) occurs more than
// once. The latter error is reported with errors.Integrity.
func Build(store *unitig.Store, opts Opts) (*Index, error) {
	k := opts.KmerLength
	if err := kmer.ValidateLength(k); err != nil {
		return nil, err
	}
	min, limit := store.IDRange()
	for id := min; id < limit; id++ {
		if n := store.Length(id); n < k {
			return nil, errors.E(errors.Invalid, fmt.Sprintf(
				"unitig %d (%s) has length %d, shorter than k=%d", id, store.Name(id), n, k))
		}
	}
	par := parallelism(opts)
	nShard := numShards(par)
	log.Printf("Creating kmer index: %d unitigs, k=%d, %d workers, %d shards",
		store.Count(), k, par, nShard)

	r := newRegistrar(nShard)
	nUnitig := int(limit - min)
	err := traverse.Each(par, func(jobIdx int) error {
		start := min + unitig.ID(jobIdx*nUnitig/par)
		end := min + unitig.ID((jobIdx+1)*nUnitig/par)
		w := kmer.NewWindow(k)
		for rid := start; rid < end; rid++ {
			registerUnitig(r, &w, rid, store.Seq(rid))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := r.duplicateError(k); err != nil {
		return nil, err
	}
	idx, err := r.freeze(k, store.Count(), par)
	if err != nil {
		return nil, err
	}
	log.Printf("Finished creating kmer index: %d kmers", idx.Count())
	return idx, nil
}
