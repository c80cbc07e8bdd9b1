// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import "github.com/biogo/htscore/sam"

// ResolveBases reconstructs a read's sequence from a reference sequence and
// the list of Features recorded for it by a CRAM compression slice.
// alignmentStart is the 1-based leftmost reference position of the
// alignment; readLen is the length of the read to produce. Bases not
// covered by any feature are copied from the reference.
func ResolveBases(reference []byte, matrix *SubstitutionMatrix, features []Feature, alignmentStart int32, readLen int) []byte {
	buf := make([]byte, readLen)
	for i := range buf {
		buf[i] = '-'
	}

	refPos := int(alignmentStart) - 1
	readPos := 0

	for _, f := range features {
		featurePos := int(f.Pos)

		for readPos < featurePos-1 {
			buf[readPos] = reference[refPos]
			refPos++
			readPos++
		}

		switch f.Kind {
		case FeatureSubstitution:
			ref := ParseBase(reference[refPos])
			buf[readPos] = matrix.Get(ref, f.Code).Byte()
			refPos++
			readPos++
		case FeatureInsertion:
			for _, b := range f.Bases {
				buf[readPos] = b
				readPos++
			}
		case FeatureDeletion:
			refPos += int(f.Len)
		case FeatureReferenceSkip:
			refPos += int(f.Len)
		case FeatureInsertBase:
			buf[readPos] = f.Base
			readPos++
		case FeatureSoftClip:
			for _, b := range f.Bases {
				buf[readPos] = b
				readPos++
			}
		case FeatureHardClip:
			// Consumes neither the read nor the reference.
		default:
			// Padding consumes neither the read nor the reference.
		}
	}

	for readPos < len(buf) {
		buf[readPos] = reference[refPos]
		refPos++
		readPos++
	}

	return buf
}

// ResolveCigar reconstructs a read's CIGAR from the list of Features
// recorded for it by a CRAM compression slice and the read's length.
// Positions not named by any feature become CigarMatch runs.
func ResolveCigar(features []Feature, readLen int32) sam.Cigar {
	var ops sam.Cigar
	i := int32(1)

	for _, f := range features {
		if f.Pos > i {
			ops = append(ops, sam.NewCigarOp(sam.CigarMatch, int(f.Pos-i)))
			i = f.Pos
		}

		var kind sam.CigarOpType
		var length int32
		switch f.Kind {
		case FeatureSubstitution:
			kind, length = sam.CigarMatch, 1
		case FeatureInsertion:
			kind, length = sam.CigarInsertion, int32(len(f.Bases))
		case FeatureDeletion:
			kind, length = sam.CigarDeletion, f.Len
		case FeatureInsertBase:
			kind, length = sam.CigarInsertion, 1
		case FeatureReferenceSkip:
			kind, length = sam.CigarSkipped, f.Len
		case FeatureSoftClip:
			kind, length = sam.CigarSoftClipped, int32(len(f.Bases))
		case FeaturePadding:
			kind, length = sam.CigarPadded, f.Len
		case FeatureHardClip:
			kind, length = sam.CigarHardClipped, f.Len
		default:
			continue
		}

		ops = append(ops, sam.NewCigarOp(kind, int(length)))
		i += length
	}

	if i < readLen {
		ops = append(ops, sam.NewCigarOp(sam.CigarMatch, int(readLen-i+1)))
	}

	return ops
}
