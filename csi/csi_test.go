// Copyright ©2015 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package csi

import (
	"testing"

	"github.com/biogo/htscore/internal/region"

	"gopkg.in/check.v1"
)

func Test(t *testing.T) { check.TestingT(t) }

type S struct{}

var _ = check.Suite(&S{})

type rec struct {
	ref, start, end int
}

func (r rec) RefID() int { return r.ref }
func (r rec) Start() int { return r.start }
func (r rec) End() int   { return r.end }

// TestBinFor checks reg2bin(8, 13) == 4681 and reg2bin(63245986, 63245986)
// == 8541, both using 1-based inclusive coordinates converted to the
// 0-based half-open convention BinFor expects.
func (s *S) TestBinFor(c *check.C) {
	for _, t := range []struct {
		beg, end int
		want     uint32
	}{
		{7, 13, 4681},
		{63245985, 63245986, 8541},
	} {
		got, err := region.BinFor(t.beg, t.end)
		c.Assert(err, check.IsNil)
		c.Check(got, check.Equals, t.want, check.Commentf("BinFor(%d,%d)", t.beg, t.end))
	}
}

// TestLinearIndexWindowBoundary checks that a second record landing in the
// next 16384-base tile grows the linear index by exactly one entry.
func (s *S) TestLinearIndexWindowBoundary(c *check.C) {
	ix := New()
	err := ix.Add(rec{0, 0, 16384}, region.Chunk{Start: 5, End: 13}, true, true)
	c.Assert(err, check.IsNil)
	ref := ix.Reference(0)
	c.Assert(ref.LinearIndex, check.HasLen, 1)
	c.Check(ref.LinearIndex[0], check.Equals, region.VirtualPosition(5))

	err = ix.Add(rec{0, 16384, 16385}, region.Chunk{Start: 21, End: 34}, true, true)
	c.Assert(err, check.IsNil)
	c.Assert(ref.LinearIndex, check.HasLen, 2)
	c.Check(ref.LinearIndex[0], check.Equals, region.VirtualPosition(5))
	c.Check(ref.LinearIndex[1], check.Equals, region.VirtualPosition(21))
}

// TestQueryCompleteness checks that a query overlapping an inserted chunk's
// interval returns a chunk list whose union covers the original chunk.
func (s *S) TestQueryCompleteness(c *check.C) {
	ix := New()
	chunk := region.Chunk{Start: 100, End: 200}
	c.Assert(ix.Add(rec{0, 1000, 2000}, chunk, true, true), check.IsNil)

	got, err := ix.Chunks(0, 1500, 1600)
	c.Assert(err, check.IsNil)
	c.Assert(got, check.HasLen, 1)
	c.Check(got[0].Start <= chunk.Start && got[0].End >= chunk.End, check.Equals, true)
}

// TestChunkMergingIdempotence checks that adding the same chunk twice
// produces the same query result as adding it once.
func (s *S) TestChunkMergingIdempotence(c *check.C) {
	chunk := region.Chunk{Start: 100, End: 200}

	once := New()
	c.Assert(once.Add(rec{0, 10, 20}, chunk, true, true), check.IsNil)

	twice := New()
	c.Assert(twice.Add(rec{0, 10, 20}, chunk, true, true), check.IsNil)
	c.Assert(twice.Add(rec{0, 10, 20}, chunk, true, true), check.IsNil)

	onceChunks, err := once.Chunks(0, 10, 20)
	c.Assert(err, check.IsNil)
	twiceChunks, err := twice.Chunks(0, 10, 20)
	c.Assert(err, check.IsNil)
	c.Check(twiceChunks, check.DeepEquals, onceChunks)
}

// TestLinearIndexMonotonicity checks that inserting in non-decreasing start
// order yields a non-decreasing linear index.
func (s *S) TestLinearIndexMonotonicity(c *check.C) {
	ix := New()
	starts := []int{0, 5000, 20000, 20500, 50000}
	for i, st := range starts {
		chunk := region.Chunk{Start: region.VirtualPosition(i * 10), End: region.VirtualPosition(i*10 + 5)}
		c.Assert(ix.Add(rec{0, st, st + 1}, chunk, true, true), check.IsNil)
	}
	ref := ix.Reference(0)
	for i := 1; i < len(ref.LinearIndex); i++ {
		if ref.LinearIndex[i] == 0 {
			continue
		}
		c.Check(ref.LinearIndex[i] >= ref.LinearIndex[i-1] || ref.LinearIndex[i-1] == 0, check.Equals, true)
	}
}

// TestAddMergesAdjacentChunks exercises the bin-level chunk merge rule,
// grounded on noodles-csi's Bin builder test.
func (s *S) TestAddMergesAdjacentChunks(c *check.C) {
	ix := New()
	c.Assert(ix.Add(rec{0, 8, 13}, region.Chunk{Start: 5, End: 13}, true, true), check.IsNil)
	c.Assert(ix.Add(rec{0, 8, 13}, region.Chunk{Start: 8, End: 21}, true, true), check.IsNil)

	ref := ix.Reference(0)
	id, err := region.BinFor(8, 13)
	c.Assert(err, check.IsNil)
	b := ref.Bins[id]
	c.Assert(b.Chunks, check.HasLen, 1)
	c.Check(b.Chunks[0], check.Equals, region.Chunk{Start: 5, End: 21})
	c.Check(b.Loffset, check.Equals, region.VirtualPosition(5))
}

func (s *S) TestUnmappedTally(c *check.C) {
	ix := New()
	c.Assert(ix.Add(rec{}, region.Chunk{}, false, false), check.IsNil)
	c.Assert(ix.Add(rec{}, region.Chunk{}, false, false), check.IsNil)
	n, ok := ix.Unmapped()
	c.Assert(ok, check.Equals, true)
	c.Check(n, check.Equals, uint64(2))
}
