// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package gfa

import (
	"bytes"
	"strings"
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

const testGFA = "H\tVN:Z:1.0\n" +
	"S\t1\tACGTACGGTA\tLN:i:10\n" +
	"L\t1\t+\t2\t+\t4M\n" +
	"\n" +
	"# comment\n" +
	"S\t2\tGTAACCA\n" +
	"P\tx\t1+,2+\t*\n" +
	"S 3 TTTT\n"

func scanAll(t *testing.T, data string) ([]Segment, error) {
	sc := NewScanner(strings.NewReader(data))
	var (
		seg  Segment
		segs []Segment
	)
	for sc.Scan(&seg) {
		segs = append(segs, seg)
	}
	expect.False(t, sc.Scan(&seg))
	return segs, sc.Err()
}

func TestScanner(t *testing.T) {
	segs, err := scanAll(t, testGFA)
	require.NoError(t, err)
	expect.EQ(t, segs, []Segment{
		{Name: "1", Seq: "ACGTACGGTA"},
		{Name: "2", Seq: "GTAACCA"},
		{Name: "3", Seq: "TTTT"},
	})
}

func TestScannerMissingSequence(t *testing.T) {
	for _, data := range []string{
		"H\tVN:Z:1.0\nS\t1\n",
		"S\t1\tACGT\nS\t2\t*\tLN:i:10\n",
	} {
		segs, err := scanAll(t, data)
		require.Error(t, err)
		expect.True(t, strings.Contains(err.Error(), "lacks a sequence"), "%v", err)
		expect.LE(t, len(segs), 1)
	}
}

func TestPathWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewPathWriter(&buf)
	require.NoError(t, w.Write("reads#0#0", []Step{{ID: 1}}))
	require.NoError(t, w.Write("reads#1#0", []Step{{ID: 5}, {ID: 7, Reverse: true}}))
	require.NoError(t, w.Write("reads#2#0", nil))
	require.NoError(t, w.Flush())
	expect.EQ(t, buf.String(),
		"P\treads#0#0\t1+\t*\n"+
			"P\treads#1#0\t5+,7-\t*\n"+
			"P\treads#2#0\t\t*\n")
	expect.EQ(t, FormatSteps([]Step{{ID: 12, Reverse: true}, {ID: 3}}), "12-,3+")
	expect.EQ(t, FormatSteps(nil), "")
}
