// Copyright 2019 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package fastx reads FASTA and FASTQ files as a byte stream, one fixed-size
// chunk at a time. It does not parse records; see pathdecode for that.
package fastx

import (
	"bytes"
	"context"
	"io"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"v.io/x/lib/vlog"
)

// DefaultChunkSize is the default size of one read from the underlying
// stream.
const DefaultChunkSize = 16 << 10

// maxEmptyReads bounds the number of consecutive (0, nil) results tolerated
// from the underlying reader.
const maxEmptyReads = 100

// ChunkReader presents an io.Reader as a stream of bytes. It reads the
// underlying stream chunkSize bytes at a time into a buffer it owns, and keeps
// an explicit cursor into the buffer. Every byte of the stream is returned
// exactly once, regardless of where the chunk boundaries fall.
//
// ChunkReader implements io.ByteReader. It is not thread safe.
type ChunkReader struct {
	r   io.Reader
	buf []byte
	// buf[off:n] are the bytes not yet consumed.
	off, n int
	err    error
	// nChunks is the number of refills that produced data.
	nChunks int
}

// NewChunkReader creates a ChunkReader. chunkSize <= 0 means DefaultChunkSize.
func NewChunkReader(r io.Reader, chunkSize int) *ChunkReader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &ChunkReader{r: r, buf: make([]byte, chunkSize)}
}

// refill reads the next chunk. It returns false once the stream is exhausted
// or broken; c.err is set then.
func (c *ChunkReader) refill() bool {
	for i := 0; c.err == nil; i++ {
		if i >= maxEmptyReads {
			c.err = io.ErrNoProgress
			break
		}
		n, err := c.r.Read(c.buf)
		c.off, c.n = 0, n
		if err != nil {
			c.err = err
		}
		if n > 0 {
			c.nChunks++
			return true
		}
	}
	return false
}

// ReadByte returns the next byte of the stream. It returns io.EOF at the end
// of the stream, or the error reported by the underlying reader.
func (c *ChunkReader) ReadByte() (byte, error) {
	if c.off >= c.n && !c.refill() {
		return 0, c.err
	}
	b := c.buf[c.off]
	c.off++
	return b, nil
}

// SkipLine discards bytes up to and including the next '\n', refilling the
// buffer as many times as needed. It returns io.EOF if the stream ends before
// a newline.
func (c *ChunkReader) SkipLine() error {
	for {
		if c.off >= c.n && !c.refill() {
			return c.err
		}
		if i := bytes.IndexByte(c.buf[c.off:c.n], '\n'); i >= 0 {
			c.off += i + 1
			return nil
		}
		c.off = c.n
	}
}

// Chunks returns the number of chunks read so far.
func (c *ChunkReader) Chunks() int { return c.nChunks }

// Reader is a ChunkReader over a file. Compressed files (gzip, zstd, bzip2)
// are detected from their contents and decompressed transparently.
type Reader struct {
	*ChunkReader
	path string
	in   file.File
	rc   io.ReadCloser
}

// Open opens the given FASTA or FASTQ file for reading. chunkSize <= 0 means
// DefaultChunkSize.
func Open(ctx context.Context, path string, chunkSize int) (*Reader, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	rc, compressed := compress.NewReader(in.Reader(ctx))
	vlog.VI(1).Infof("%s: compressed=%v, chunk size %d", path, compressed, chunkSize)
	return &Reader{
		ChunkReader: NewChunkReader(rc, chunkSize),
		path:        path,
		in:          in,
		rc:          rc,
	}, nil
}

// Path returns the path passed to Open.
func (r *Reader) Path() string { return r.path }

// ReadByte is the same as ChunkReader.ReadByte, except that errors other than
// io.EOF are annotated with the file path.
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.ChunkReader.ReadByte()
	if err != nil && err != io.EOF {
		err = errors.E(err, "read", r.path)
	}
	return b, err
}

// Close closes the file.
func (r *Reader) Close(ctx context.Context) error {
	once := errors.Once{}
	once.Set(r.rc.Close())
	once.Set(r.in.Close(ctx))
	if err := once.Err(); err != nil {
		return errors.E(err, "close", r.path)
	}
	return nil
}
