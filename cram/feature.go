// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import "fmt"

// FeatureKind identifies the kind of read/reference divergence a Feature
// records relative to an alignment's reference sequence.
type FeatureKind byte

const (
	FeatureSubstitution FeatureKind = iota
	FeatureInsertion
	FeatureDeletion
	FeatureInsertBase
	FeatureReferenceSkip
	FeatureSoftClip
	FeaturePadding
	FeatureHardClip
)

func (k FeatureKind) String() string {
	switch k {
	case FeatureSubstitution:
		return "substitution"
	case FeatureInsertion:
		return "insertion"
	case FeatureDeletion:
		return "deletion"
	case FeatureInsertBase:
		return "insert base"
	case FeatureReferenceSkip:
		return "reference skip"
	case FeatureSoftClip:
		return "soft clip"
	case FeaturePadding:
		return "padding"
	case FeatureHardClip:
		return "hard clip"
	default:
		return fmt.Sprintf("FeatureKind(%d)", byte(k))
	}
}

// Feature is a single read feature from a CRAM compression slice: a
// 1-based read position together with the divergence from the reference
// that occurs there. Only the fields relevant to Kind are populated.
type Feature struct {
	Kind FeatureKind

	// Pos is the 1-based position of the feature within the read.
	Pos int32

	// Code is the substitution matrix code for a FeatureSubstitution.
	Code byte

	// Base is the inserted base for a FeatureInsertBase.
	Base byte

	// Bases holds the inserted bases for FeatureInsertion and FeatureSoftClip.
	Bases []byte

	// Len is the run length for FeatureDeletion, FeatureReferenceSkip,
	// FeaturePadding and FeatureHardClip.
	Len int32
}

// Position returns the 1-based read position of the feature.
func (f Feature) Position() int32 { return f.Pos }
