// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/syncqueue"
	"github.com/grailbio/cdbgpath/encoding/fastx"
	"github.com/grailbio/cdbgpath/encoding/gfa"
	"github.com/grailbio/cdbgpath/kmer"
	"github.com/grailbio/cdbgpath/kmerindex"
	"github.com/grailbio/cdbgpath/pathdecode"
	"github.com/grailbio/cdbgpath/unitig"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"
)

// Collection of options set via cmdline flags.
type cdbgFlags struct {
	gfaPath         string
	indexInputPath  string
	indexOutputPath string
	outputPath      string
	fileParallelism int
	chunkSize       int
	queryPaths      []string
}

// validate checks the flag combination before any work is done. All the
// errors are of kind errors.Invalid.
func (f cdbgFlags) validate(indexOpts kmerindex.Opts) error {
	if (f.gfaPath == "") == (f.indexInputPath == "") {
		return errors.E(errors.Invalid, "exactly one of -gfa and -index-input must be set")
	}
	if f.gfaPath != "" {
		if indexOpts.KmerLength == 0 {
			return errors.E(errors.Invalid, "-k is required with -gfa")
		}
		if err := kmer.ValidateLength(indexOpts.KmerLength); err != nil {
			return errors.E(errors.Invalid, "-k", err)
		}
	}
	if len(f.queryPaths) == 0 && f.indexOutputPath == "" {
		return errors.E(errors.Invalid, "no query files given, and -index-output is not set")
	}
	if f.fileParallelism < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("-file-parallelism must be >= 0, got %d", f.fileParallelism))
	}
	if f.chunkSize < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("-chunk-size must be >= 0, got %d", f.chunkSize))
	}
	return nil
}

// openIndex builds the index from -gfa, or loads it from -index-input.
func openIndex(ctx context.Context, flags cdbgFlags, indexOpts kmerindex.Opts) (*kmerindex.Index, error) {
	if flags.indexInputPath != "" {
		idx, err := kmerindex.Load(ctx, flags.indexInputPath, indexOpts.Parallelism)
		if err != nil {
			return nil, err
		}
		if k := indexOpts.KmerLength; k != 0 && k != idx.KmerLength() {
			idx.Close()
			return nil, errors.E(errors.Invalid, fmt.Sprintf("-k=%d, but %s was built with k=%d",
				k, flags.indexInputPath, idx.KmerLength()))
		}
		return idx, nil
	}
	store, err := unitig.ReadGFA(ctx, flags.gfaPath)
	if err != nil {
		return nil, err
	}
	return kmerindex.Build(store, indexOpts)
}

// createOutput opens the destination of P records. An empty path means
// stdout. A path ending in .gz is gzip-compressed.
func createOutput(ctx context.Context, path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, nil, errors.E(err, "create", path)
	}
	if !strings.HasSuffix(path, ".gz") {
		return out.Writer(ctx), func() error { return out.Close(ctx) }, nil
	}
	gz := gzip.NewWriter(out.Writer(ctx))
	return gz, func() error {
		once := errors.Once{}
		once.Set(gz.Close())
		once.Set(out.Close(ctx))
		return once.Err()
	}, nil
}

// decodeFile writes the paths of the records in the given query file to out.
func decodeFile(ctx context.Context, idx pathdecode.Index, path string, out io.Writer, opts pathdecode.Opts, chunkSize int) error {
	in, err := fastx.Open(ctx, path, chunkSize)
	if err != nil {
		return err
	}
	w := gfa.NewPathWriter(out)
	e := pathdecode.NewEmitter(w, pathdecode.RecordName(path))
	once := errors.Once{}
	once.Set(pathdecode.NewDecoder(idx, opts).Decode(ctx, in, e.Emit))
	once.Set(w.Flush())
	once.Set(in.Close(ctx))
	if err := once.Err(); err != nil {
		return errors.E(err, "decode", path)
	}
	nRecords, nSegments := e.Stats()
	log.Printf("%s: wrote %d paths for %d records (%d chunks)", in.Path(), nSegments, nRecords, in.Chunks())
	return nil
}

// decodeFiles decodes the query files in order. With parallelism > 1, files
// are decoded concurrently into per-file buffers, which are written to out in
// the order of paths, so the records of two files never interleave.
func decodeFiles(ctx context.Context, idx pathdecode.Index, paths []string, out io.Writer, opts pathdecode.Opts, chunkSize, parallelism int) error {
	if parallelism <= 1 {
		for _, path := range paths {
			if err := decodeFile(ctx, idx, path, out, opts, chunkSize); err != nil {
				return err
			}
		}
		return nil
	}

	queue := syncqueue.NewOrderedQueue(parallelism)
	writeErr := make(chan error, 1)
	go func() {
		for {
			entry, ok, err := queue.Next()
			if err != nil || !ok {
				writeErr <- err
				return
			}
			if _, err := entry.(*bytes.Buffer).WriteTo(out); err != nil {
				queue.Close(err)
				writeErr <- err
				return
			}
		}
	}()

	eg, ectx := errgroup.WithContext(ctx)
	fileCh := make(chan int)
	eg.Go(func() error {
		defer close(fileCh)
		for i := range paths {
			select {
			case fileCh <- i:
			case <-ectx.Done():
				return nil
			}
		}
		return nil
	})
	for i := 0; i < parallelism; i++ {
		eg.Go(func() error {
			for fi := range fileCh {
				buf := &bytes.Buffer{}
				err := decodeFile(ectx, idx, paths[fi], buf, opts, chunkSize)
				if err == nil {
					err = queue.Insert(fi, buf)
				}
				if err != nil {
					// Unblock the other workers and the writer.
					queue.Close(err)
					return err
				}
			}
			return nil
		})
	}
	err := eg.Wait()
	if err == nil {
		queue.Close(nil)
	}
	if werr := <-writeErr; err == nil {
		err = werr
	}
	return err
}

// cdbgPath runs the whole pipeline: it creates the index, optionally saves
// it, and decodes the query files.
func cdbgPath(ctx context.Context, flags cdbgFlags, indexOpts kmerindex.Opts, decodeOpts pathdecode.Opts) error {
	if err := flags.validate(indexOpts); err != nil {
		return err
	}
	idx, err := openIndex(ctx, flags, indexOpts)
	if err != nil {
		return err
	}
	defer idx.Close()
	if flags.indexOutputPath != "" {
		if err := idx.Save(ctx, flags.indexOutputPath); err != nil {
			return err
		}
	}
	if len(flags.queryPaths) == 0 {
		return nil
	}
	out, closeOut, err := createOutput(ctx, flags.outputPath)
	if err != nil {
		return err
	}
	once := errors.Once{}
	once.Set(decodeFiles(ctx, idx, flags.queryPaths, out, decodeOpts, flags.chunkSize, flags.fileParallelism))
	once.Set(closeOut())
	return once.Err()
}
