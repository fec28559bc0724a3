// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pathdecode

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cdbgpath/kmer"
	"github.com/grailbio/cdbgpath/kmerindex"
	"github.com/grailbio/cdbgpath/unitig"
)

// Reconstruct re-derives seq from the unitigs its k-mers map to. The first
// k-1 bases of every nucleotide run are copied from seq; every later base is
// read from the unitig location of the k-mer it ends, complemented for
// reverse-strand hits. Non-nucleotide bytes are copied as is.
//
// For any seq that can be decoded against idx, the result equals seq with
// bases in upper case after the first k-1 of each run. It is meant for
// validating an index, not for production use.
func Reconstruct(idx Index, store *unitig.Store, seq string) (string, error) {
	w := kmer.NewWindow(idx.KmerLength())
	out := make([]byte, len(seq))
	for i := 0; i < len(seq); i++ {
		b := seq[i]
		out[i] = b
		if !w.Push(b) || !w.Full() {
			continue
		}
		loc, ok := idx.Lookup(w.Forward())
		if !ok {
			return "", errors.E(errors.NotExist, fmt.Sprintf("offset %d: kmer %s not found in the graph",
				i, kmer.Spell(w.Forward(), w.Len())))
		}
		c := store.CharAt(loc.RID, int(loc.Pos))
		if loc.Strand == kmerindex.Reverse {
			c = kmer.ComplementBase(kmer.Code(c))
		}
		out[i] = c
	}
	return string(out), nil
}
