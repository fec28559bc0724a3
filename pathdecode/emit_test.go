// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package pathdecode

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/grailbio/cdbgpath/encoding/gfa"
	"github.com/grailbio/cdbgpath/kmerindex"
	"github.com/grailbio/cdbgpath/unitig"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestRecordName(t *testing.T) {
	for _, test := range []struct{ path, want string }{
		{"reads.fa", "reads"},
		{"/data/reads.fq.gz", "reads"},
		{"s3://bucket/dir/sample.1.fastq.zst", "sample.1"},
		{"reads.bgz", "reads"},
		{"reads", "reads"},
		{".hidden", ".hidden"},
		{"dir.d/reads", "reads"},
	} {
		expect.EQ(t, RecordName(test.path), test.want, test.path)
	}
}

func TestEmitter(t *testing.T) {
	var out bytes.Buffer
	w := gfa.NewPathWriter(&out)
	e := NewEmitter(w, "reads")
	assert.NoError(t, e.Emit([]Segment{
		{Record: 0, Index: 0, Steps: []gfa.Step{{ID: 1}, {ID: 2, Reverse: true}}},
	}))
	assert.NoError(t, e.Emit([]Segment{
		{Record: 2, Index: 0, Steps: []gfa.Step{{ID: 3}}},
		{Record: 2, Index: 1, Steps: []gfa.Step{{ID: 4, Reverse: true}}},
	}))
	assert.NoError(t, w.Flush())
	expect.EQ(t, out.String(), "P\treads#0#0\t1+,2-\t*\n"+
		"P\treads#2#0\t3+\t*\n"+
		"P\treads#2#1\t4-\t*\n")
	records, segments := e.Stats()
	expect.EQ(t, records, 2)
	expect.EQ(t, segments, 3)
}

func TestEndToEnd(t *testing.T) {
	const seq = "ACGGTCAAT"
	store := unitig.NewStore([]string{seq})
	idx, err := kmerindex.Build(store, kmerindex.Opts{KmerLength: 4})
	assert.NoError(t, err)
	defer idx.Close()

	var out bytes.Buffer
	w := gfa.NewPathWriter(&out)
	e := NewEmitter(w, RecordName("query.fa"))
	assert.NoError(t, NewDecoder(idx, DefaultOpts).Decode(context.Background(), strings.NewReader(">q\n"+seq+"\n"), e.Emit))
	assert.NoError(t, w.Flush())
	expect.EQ(t, out.String(), "P\tquery#0#0\t1+\t*\n")
}
