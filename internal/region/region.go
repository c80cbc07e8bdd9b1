// Copyright ©2014 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package region provides the genomic bin arithmetic and virtual position
// primitives shared by the sam, bam and csi packages.
package region

import "errors"

// ErrInvalidInterval is returned when a requested bin calculation falls
// outside the range addressable by the 6-level bin hierarchy.
var ErrInvalidInterval = errors.New("region: interval out of range")

// UnmappedBin is the bin number assigned to unplaced or partially placed
// records. It is the documented result of reg2bin(-1, 0).
const UnmappedBin = 4680

// WindowSize is the width, in bases, of a single linear-index tile.
const WindowSize = 1 << 14 // 16384

const (
	indexWordBits = 29
	nextBinShift  = 3
)

// IsValidPos returns whether i is in the valid range for a 0-based BAM/SAM
// coordinate, [-1, 1<<29).
func IsValidPos(i int) bool { return -1 <= i && i < 1<<indexWordBits }

const (
	level0 = uint32(((1 << (iota * nextBinShift)) - 1) / 7)
	level1
	level2
	level3
	level4
	level5
)

const (
	level0Shift = indexWordBits - (iota * nextBinShift)
	level1Shift
	level2Shift
	level3Shift
	level4Shift
	level5Shift
)

// BinFor returns the bin number for the half-open interval [beg, end),
// 0-based, following the UCSC/SAM binning scheme (shifts 14, 17, 20, 23 and
// 26 bases, the deepest level first).
//
// An interval that fits none of the 5 refined levels is placed in bin 0.
// The unmapped interval beg == -1, end == 0 resolves to UnmappedBin (4680),
// the reg2bin(-1, 0) result.
func BinFor(beg, end int) (uint32, error) {
	if !IsValidPos(beg) || !IsValidPos(end) {
		return 0, ErrInvalidInterval
	}
	end--
	switch {
	case beg>>level5Shift == end>>level5Shift:
		return level5 + uint32(beg>>level5Shift), nil
	case beg>>level4Shift == end>>level4Shift:
		return level4 + uint32(beg>>level4Shift), nil
	case beg>>level3Shift == end>>level3Shift:
		return level3 + uint32(beg>>level3Shift), nil
	case beg>>level2Shift == end>>level2Shift:
		return level2 + uint32(beg>>level2Shift), nil
	case beg>>level1Shift == end>>level1Shift:
		return level1 + uint32(beg>>level1Shift), nil
	}
	return level0, nil
}

// OverlappingBins returns the bin numbers of every bin that can overlap the
// half-open interval [beg, end), 0-based. It is the symmetric counterpart
// to BinFor used when querying an index.
func OverlappingBins(beg, end int) []uint32 {
	end--
	list := []uint32{level0}
	for _, r := range []struct {
		offset, shift uint32
	}{
		{level1, level1Shift},
		{level2, level2Shift},
		{level3, level3Shift},
		{level4, level4Shift},
		{level5, level5Shift},
	} {
		lo := r.offset + uint32(beg>>r.shift)
		hi := r.offset + uint32(end>>r.shift)
		for k := lo; k <= hi; k++ {
			list = append(list, k)
		}
	}
	return list
}

// VirtualPosition is an opaque 64-bit BGZF seek coordinate: a compressed
// block offset packed into the high 48 bits and an uncompressed intra-block
// offset in the low 16 bits. Total order on the packed integer matches
// stream order.
type VirtualPosition uint64

// MaxVirtualPosition is the sentinel used to seed a fresh bin's loffset
// before any chunk has been added to it.
const MaxVirtualPosition = VirtualPosition(1<<64 - 1)

// NewVirtualPosition packs a compressed-block offset and an intra-block
// offset into a VirtualPosition.
func NewVirtualPosition(coffset int64, uoffset uint16) VirtualPosition {
	return VirtualPosition(coffset<<16 | int64(uoffset))
}

// Coffset returns the compressed block offset component.
func (v VirtualPosition) Coffset() int64 { return int64(v >> 16) }

// Uoffset returns the uncompressed intra-block offset component.
func (v VirtualPosition) Uoffset() uint16 { return uint16(v) }

// Chunk is a half-open interval [Start, End) of virtual positions.
type Chunk struct {
	Start, End VirtualPosition
}

// Mergeable returns whether c and next are adjacent or overlapping, in
// which case a single chunk spanning both may replace them. The comparison
// is inclusive of equality, matching the reference implementation exactly:
// next.Start <= c.End.
func (c Chunk) Mergeable(next Chunk) bool {
	return next.Start <= c.End
}
