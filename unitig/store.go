// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package unitig holds the unitig sequences of a compacted de Bruijn graph.
package unitig

import (
	"context"
	"io"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cdbgpath/encoding/gfa"
)

// ID is a dense sequence number (1, 2, 3, ...) assigned to a unitig in the
// order of the S records of the graph. IDs are valid only within one process
// invocation.
type ID uint32

// PlaceholderID is occupied by a zero-length entry. It never identifies a real
// unitig.
const PlaceholderID = ID(0)

// Store is an ordered collection of unitig sequences. It is immutable once
// created, so it is safe for concurrent reads.
type Store struct {
	names []string
	seqs  []string // indexed by ID
}

// NewStore creates a store from a list of sequences. seqs[i] is assigned ID
// i+1. Names are set to the decimal ID.
func NewStore(seqs []string) *Store {
	s := &Store{names: []string{""}, seqs: []string{""}}
	for _, seq := range seqs {
		s.add("", seq)
	}
	return s
}

func (s *Store) add(name, seq string) {
	s.names = append(s.names, name)
	s.seqs = append(s.seqs, seq)
}

// Build reads S records from a GFA stream and creates a store from them. All
// other record types are ignored.
func Build(r io.Reader) (*Store, error) {
	s := &Store{names: []string{""}, seqs: []string{""}}
	sc := gfa.NewScanner(r)
	var seg gfa.Segment
	for sc.Scan(&seg) {
		s.add(seg.Name, seg.Seq)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

// ReadGFA reads the unitigs of the GFA file at the given path. The file may be
// compressed.
func ReadGFA(ctx context.Context, path string) (*Store, error) {
	log.Printf("Reading unitigs from %s", path)
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	var inr io.Reader = in.Reader(ctx)
	u := compress.NewReaderPath(inr, in.Name())
	if u != nil {
		inr = u
	}
	s, err := Build(inr)
	once := errors.Once{}
	once.Set(err)
	if u != nil {
		once.Set(u.Close())
	}
	once.Set(in.Close(ctx))
	if err := once.Err(); err != nil {
		return nil, errors.E(err, "read", path)
	}
	log.Printf("Finished reading %s: %d unitigs", path, s.Count())
	return s, nil
}

// Count returns the number of unitigs, excluding the placeholder.
func (s *Store) Count() int { return len(s.seqs) - 1 }

// IDRange returns the range of unitig IDs registered in this store. The low
// end is closed, the high end is open. For example, (1, 95) means the store
// holds 94 unitigs, IDs 1 to 94.
func (s *Store) IDRange() (ID, ID) { return 1, ID(len(s.seqs)) }

// Seq returns the sequence of the given unitig.
//
// REQUIRES: id < limit of IDRange().
func (s *Store) Seq(id ID) string { return s.seqs[id] }

// Name returns the GFA segment name of the given unitig. It is informational
// only; paths refer to unitigs by ID.
func (s *Store) Name(id ID) string { return s.names[id] }

// Length returns the length of the given unitig.
func (s *Store) Length(id ID) int { return len(s.seqs[id]) }

// CharAt returns the pos'th base of the given unitig.
//
// REQUIRES: 0 <= pos < Length(id)
func (s *Store) CharAt(id ID, pos int) byte { return s.seqs[id][pos] }
