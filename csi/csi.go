// Copyright ©2015 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package csi implements the coordinate sorted binning index used for
// random access into position-sorted alignment streams: a per-reference
// bin tree plus a linear index of minimum offsets, built incrementally as
// records are written and queried to answer "which chunks of the stream
// might hold records overlapping this interval".
package csi

import (
	"errors"
	"sort"

	"github.com/biogo/htscore/internal/region"
)

// ErrNoReference is returned by Chunks when asked about a reference ID
// beyond the highest one any record has been added for.
var ErrNoReference = errors.New("csi: no reference")

// ErrOutOfOrder is returned by Add when records are not offered in
// coordinate order, since the linear index and reference ID ordering both
// depend on monotonic insertion.
var ErrOutOfOrder = errors.New("csi: record out of sort order")

// Record is the minimal view of an alignment record the index needs in
// order to place it: its reference and its mapped extent. Whether it is
// placed and mapped at all is passed to Add separately.
type Record interface {
	RefID() int
	Start() int
	End() int
}

// Bin is a single node of the binning tree: an identifier from the
// hierarchy in the region package, the minimum chunk start offset over all
// chunks it holds (its loffset), and the chunks themselves in start order.
type Bin struct {
	ID      uint32
	Loffset region.VirtualPosition
	Chunks  []region.Chunk
}

func newBin(id uint32) *Bin {
	return &Bin{ID: id, Loffset: region.MaxVirtualPosition}
}

// addChunk inserts c into the bin, merging it with the last chunk when the
// two overlap or abut (last.End >= c.Start, matching the reference
// implementation's inclusive comparison) and updating loffset.
func (b *Bin) addChunk(c region.Chunk) {
	if c.Start < b.Loffset {
		b.Loffset = c.Start
	}
	if n := len(b.Chunks); n != 0 {
		last := &b.Chunks[n-1]
		if last.Mergeable(c) {
			if c.End > last.End {
				last.End = c.End
			}
			return
		}
	}
	b.Chunks = append(b.Chunks, c)
}

// ReferenceStats holds mapped/unmapped counts and the overall chunk span
// for a single reference sequence.
type ReferenceStats struct {
	Chunk    region.Chunk
	Mapped   uint64
	Unmapped uint64
}

// ReferenceIndex is the per-reference binning structure: a bin tree keyed
// by bin id and a dense linear index of minimum virtual positions, one
// entry per region.WindowSize-base tile.
type ReferenceIndex struct {
	Bins        map[uint32]*Bin
	LinearIndex []region.VirtualPosition
	Stats       *ReferenceStats

	lastStart int
}

func newReferenceIndex() *ReferenceIndex {
	return &ReferenceIndex{Bins: make(map[uint32]*Bin)}
}

// Index is a coordinate sorted binning index over zero or more references.
type Index struct {
	refs         []*ReferenceIndex
	unmapped     uint64
	haveUnmapped bool
}

// New returns an empty Index.
func New() *Index {
	return &Index{}
}

// NumRefs returns the number of references the index has entries for.
func (ix *Index) NumRefs() int { return len(ix.refs) }

// Reference returns the ReferenceIndex for id, or nil if id is beyond the
// highest reference any record has been added for. A lower id with no
// records of its own has an empty ReferenceIndex.
func (ix *Index) Reference(id int) *ReferenceIndex {
	if id < 0 || id >= len(ix.refs) {
		return nil
	}
	return ix.refs[id]
}

// Unmapped returns the number of unplaced records added to the index and
// whether any unplaced record has been seen at all.
func (ix *Index) Unmapped() (n uint64, ok bool) { return ix.unmapped, ix.haveUnmapped }

// Add computes the bin for [start, end), merges chunk into that bin's chunk
// list, extends the bin's loffset, and records chunk.Start into every
// linear-index tile the interval overlaps that does not already hold a
// value.
//
// placed indicates whether the record has a reference and position at all
// (an unplaced record is tallied as unmapped and otherwise ignored); mapped
// additionally distinguishes a placed-but-unmapped record (e.g. a mapped
// mate of an unmapped read) for statistics purposes.
func (ix *Index) Add(r Record, chunk region.Chunk, placed, mapped bool) error {
	if !placed {
		ix.unmapped++
		ix.haveUnmapped = true
		return nil
	}
	start, end := r.Start(), r.End()
	if !region.IsValidPos(start) || !region.IsValidPos(end) {
		return region.ErrInvalidInterval
	}

	rid := r.RefID()
	if rid < 0 {
		return errors.New("csi: placed record has no reference")
	}
	if rid < len(ix.refs)-1 {
		return ErrOutOfOrder
	}
	for rid >= len(ix.refs) {
		ix.refs = append(ix.refs, newReferenceIndex())
	}
	ref := ix.refs[rid]
	if start < ref.lastStart {
		return ErrOutOfOrder
	}
	ref.lastStart = start

	id, err := region.BinFor(start, end)
	if err != nil {
		return err
	}
	b, ok := ref.Bins[id]
	if !ok {
		b = newBin(id)
		ref.Bins[id] = b
	}
	b.addChunk(chunk)

	lo := start >> 14
	hi := (end - 1) >> 14
	if hi >= len(ref.LinearIndex) {
		grown := make([]region.VirtualPosition, hi+1)
		copy(grown, ref.LinearIndex)
		ref.LinearIndex = grown
	}
	for w := lo; w <= hi; w++ {
		if ref.LinearIndex[w] == 0 {
			ref.LinearIndex[w] = chunk.Start
		}
	}

	if ref.Stats == nil {
		ref.Stats = &ReferenceStats{Chunk: chunk}
	} else {
		ref.Stats.Chunk.End = chunk.End
	}
	if mapped {
		ref.Stats.Mapped++
	} else {
		ref.Stats.Unmapped++
	}
	return nil
}

// Chunks enumerates the bins that can overlap [start, end), unions their
// chunks, drops any chunk that ends at or before the linear index's minimum
// offset for the query's starting tile, and returns the remainder sorted
// and merged by start position.
func (ix *Index) Chunks(refID, start, end int) ([]region.Chunk, error) {
	if refID < 0 || refID >= len(ix.refs) {
		return nil, ErrNoReference
	}
	ref := ix.refs[refID]

	var minOffset region.VirtualPosition
	if w := start >> 14; w >= 0 && w < len(ref.LinearIndex) {
		minOffset = ref.LinearIndex[w]
	}

	var chunks []region.Chunk
	for _, id := range region.OverlappingBins(start, end) {
		b, ok := ref.Bins[id]
		if !ok {
			continue
		}
		for _, c := range b.Chunks {
			if c.End <= minOffset {
				continue
			}
			chunks = append(chunks, c)
		}
	}

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Start < chunks[j].Start })
	return MergeStrategy(nil)(chunks), nil
}

// MergeStrategy returns a function that merges adjacent or overlapping
// chunks in a sorted chunk slice. A nil fn uses the default threshold of
// zero: chunks merge exactly when the next one starts at or before the
// previous one's end, the same inclusive rule bin insertion uses.
func MergeStrategy(fn func(a, b region.Chunk) bool) func([]region.Chunk) []region.Chunk {
	if fn == nil {
		fn = region.Chunk.Mergeable
	}
	return func(chunks []region.Chunk) []region.Chunk {
		if len(chunks) < 2 {
			return chunks
		}
		merged := chunks[:1]
		for _, c := range chunks[1:] {
			last := &merged[len(merged)-1]
			if fn(*last, c) {
				if c.End > last.End {
					last.End = c.End
				}
				continue
			}
			merged = append(merged, c)
		}
		return merged
	}
}

// MergeChunks applies strategy to every bin's chunk list in the index. It
// is typically used after an index has been fully built, to collapse
// chunks that ended up adjacent across multiple insertions of overlapping
// records.
func (ix *Index) MergeChunks(strategy func([]region.Chunk) []region.Chunk) {
	if strategy == nil {
		return
	}
	for _, ref := range ix.refs {
		for _, b := range ref.Bins {
			sort.Slice(b.Chunks, func(i, j int) bool { return b.Chunks[i].Start < b.Chunks[j].Start })
			b.Chunks = strategy(b.Chunks)
		}
	}
}
