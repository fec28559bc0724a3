// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package kmerindex

// This file defines Save and Load. Save dumps an Index into a recordio file,
// and Load reads it back, so that the same graph can be queried by many runs
// without rebuilding the index.

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/grailbio/cdbgpath/kmer"
	"github.com/grailbio/cdbgpath/unitig"
)

const (
	// <fileVersionHeader, fileVersion> is stored in a recordio header.
	fileVersionHeader = "cdbgindexversion"
	fileVersion       = "CDBGIDX_V1"
)

// fileTrailer is stored in the trailer section of the recordio file.
type fileTrailer struct {
	KmerLength int
	NumUnitigs int
	NumKmers   int
	// Checksum is the seahash of all the shard records, in file order.
	Checksum uint64
}

// savedEntry is the serialized form of one index entry. Each recordio record
// is a gob-encoded []savedEntry holding one shard.
type savedEntry struct {
	Kmer   kmer.Kmer
	RID    unitig.ID
	Pos    uint32
	Strand Strand
}

// Save writes the index to path. The file is zstd-compressed.
func (idx *Index) Save(ctx context.Context, path string) error {
	recordiozstd.Init()
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	w := recordio.NewWriter(out.Writer(ctx), recordio.WriterOpts{
		Transformers: []string{recordiozstd.Name},
	})
	w.AddHeader(fileVersionHeader, fileVersion)
	w.AddHeader(recordio.KeyTrailer, true)

	once := errors.Once{}
	h := seahash.New()
	var entries []savedEntry
	for si := range idx.shards {
		entries = entries[:0]
		idx.shards[si].each(func(km kmer.Kmer, loc Location) {
			entries = append(entries, savedEntry{Kmer: km, RID: loc.RID, Pos: loc.Pos, Strand: loc.Strand})
		})
		b := bytes.NewBuffer(nil)
		once.Set(gob.NewEncoder(b).Encode(entries))
		h.Write(b.Bytes())
		w.Append(b.Bytes())
	}
	b := bytes.NewBuffer(nil)
	once.Set(gob.NewEncoder(b).Encode(fileTrailer{
		KmerLength: idx.kmerLength,
		NumUnitigs: idx.numUnitigs,
		NumKmers:   idx.nKmers,
		Checksum:   h.Sum64(),
	}))
	w.SetTrailer(b.Bytes())
	once.Set(w.Finish())
	once.Set(out.Close(ctx))
	if err := once.Err(); err != nil {
		return errors.E(err, "save kmer index", path)
	}
	log.Printf("Wrote %d kmers to %s", idx.nKmers, path)
	return nil
}

// Load reads an index written by Save. The uniqueness of every kmer is
// checked again while loading. Parallelism has the same meaning as in Opts.
func Load(ctx context.Context, path string, parallelism int) (*Index, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	idx, err := load(ctx, in, parallelism)
	once := errors.Once{}
	once.Set(err)
	once.Set(in.Close(ctx))
	if err := once.Err(); err != nil {
		if idx != nil {
			idx.Close()
		}
		return nil, errors.E(err, "load kmer index", path)
	}
	log.Printf("Read %d kmers (k=%d) from %s", idx.nKmers, idx.kmerLength, path)
	return idx, nil
}

func load(ctx context.Context, in file.File, par int) (*Index, error) {
	recordiozstd.Init()
	r := recordio.NewScanner(in.Reader(ctx), recordio.ScannerOpts{})
	versionFound := false
	for _, kv := range r.Header() {
		if kv.Key == fileVersionHeader {
			if v, ok := kv.Value.(string); !ok || v != fileVersion {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("kmer index version mismatch, got %v, expect %v", kv.Value, fileVersion))
			}
			versionFound = true
			break
		}
	}
	if !versionFound {
		if err := r.Err(); err != nil {
			return nil, err
		}
		return nil, errors.E(errors.Invalid, fileVersionHeader+" not found")
	}
	var trailer fileTrailer
	if err := gob.NewDecoder(bytes.NewReader(r.Trailer())).Decode(&trailer); err != nil {
		return nil, errors.E(err, "decode trailer")
	}
	if err := kmer.ValidateLength(trailer.KmerLength); err != nil {
		return nil, err
	}
	if par <= 0 {
		par = parallelism(Opts{})
	}
	reg := newRegistrar(numShards(par))
	h := seahash.New()
	var entries []savedEntry
	for r.Scan() {
		data := r.Get().([]byte)
		h.Write(data)
		entries = entries[:0]
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entries); err != nil {
			return nil, errors.E(err, "decode shard")
		}
		for _, e := range entries {
			reg.register(e.Kmer, Location{RID: e.RID, Pos: e.Pos, Strand: e.Strand})
		}
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if sum := h.Sum64(); sum != trailer.Checksum {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("checksum mismatch: got %x, expect %x", sum, trailer.Checksum))
	}
	if err := reg.duplicateError(trailer.KmerLength); err != nil {
		return nil, err
	}
	if n := reg.count(); n != trailer.NumKmers {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("found %d kmers, expect %d", n, trailer.NumKmers))
	}
	return reg.freeze(trailer.KmerLength, trailer.NumUnitigs, par)
}
