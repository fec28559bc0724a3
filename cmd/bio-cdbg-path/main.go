// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

// bio-cdbg-path projects DNA sequences onto a compacted de Bruijn graph.
//
// It indexes every k-mer of the unitigs (S records) of a GFA file, then reads
// FASTA or FASTQ files and prints, for each record, the path of unitigs the
// record walks through as GFA P lines:
//
//   P	<file>#<record>#<segment>	<unitig><+|->,...	*
//
// Unitigs are numbered 1, 2, ... in the order of the S records.
//
// Example 1: decode reads against a graph built with k=31.
//
//   bio-cdbg-path -gfa graph.gfa -k 31 reads.fq.gz > paths.gfa
//
// Example 2: save the index, and reuse it in a later run.
//
//   bio-cdbg-path -gfa graph.gfa -k 31 -index-output graph.cdbgidx
//   bio-cdbg-path -index-input graph.cdbgidx -break -output paths.gfa.gz a.fa b.fa

import (
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/cdbgpath/encoding/fastx"
	"github.com/grailbio/cdbgpath/kmerindex"
	"github.com/grailbio/cdbgpath/pathdecode"
)

func usage() {
	fmt.Fprintln(os.Stderr, `Usage:
  bio-cdbg-path [flags] query.fa [query2.fq.gz ...]

bio-cdbg-path reads the unitigs of a compacted de Bruijn graph (-gfa), or an
index saved by an earlier run (-index-input), and prints one GFA P line per
path segment of every record of the query files. Query files may be FASTA or
FASTQ, optionally compressed. Every k-mer of a query must occur in the graph.

Flags:`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	indexOpts := kmerindex.DefaultOpts
	decodeOpts := pathdecode.DefaultOpts
	flags := cdbgFlags{}
	flag.IntVar(&indexOpts.KmerLength, "k", 0, `Length of kmers. Required with -gfa. With -index-input it is optional,
and must match the k of the index if set.`)
	flag.IntVar(&indexOpts.Parallelism, "parallelism", kmerindex.DefaultOpts.Parallelism,
		"Number of threads used to create the index. If <= 0, use all the CPUs.")
	flag.StringVar(&flags.gfaPath, "gfa", "", "GFA file containing the unitigs of the graph.")
	flag.StringVar(&flags.indexInputPath, "index-input", "", "Index file written by -index-output. Exclusive with -gfa.")
	flag.StringVar(&flags.indexOutputPath, "index-output", "", "If set, the index is saved to this file.")
	flag.StringVar(&flags.outputPath, "output", "", "Output file. If empty, write to stdout. A .gz suffix enables gzip compression.")
	flag.BoolVar(&decodeOpts.Break, "break", decodeOpts.Break,
		"Start a new path segment at every run of non-ACGT characters.")
	flag.IntVar(&flags.fileParallelism, "file-parallelism", 1,
		`Number of query files decoded concurrently. Output is always written in
the order of the command line.`)
	flag.IntVar(&flags.chunkSize, "chunk-size", fastx.DefaultChunkSize, "Size of one read from a query file, in bytes.")

	cleanup := grail.Init()
	defer cleanup()
	ctx := vcontext.Background()
	flags.queryPaths = flag.Args()
	if err := cdbgPath(ctx, flags, indexOpts, decodeOpts); err != nil {
		log.Fatalf("bio-cdbg-path: %v", err)
	}
	log.Printf("All done")
}
