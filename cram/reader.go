// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

import (
	"fmt"
	"io"

	"github.com/biogo/htscore/cram/encoding/itf8"
	"github.com/biogo/htscore/cram/encoding/ltf8"
)

// errorReader is a sticky error io.Reader, used to decode the itf8/ltf8
// varint fields of a feature list without threading an error return
// through every intermediate read.
type errorReader struct {
	r   io.Reader
	err error
}

// Read implements the io.Reader interface.
func (r *errorReader) Read(b []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	var n int
	n, r.err = r.r.Read(b)
	return n, r.err
}

// itf8 returns the ITF-8 encoded number at the current reader position.
func (r *errorReader) itf8() int32 {
	var buf [5]byte
	_, r.err = io.ReadFull(r, buf[:1])
	if r.err != nil {
		return 0
	}
	i, n, ok := itf8.Decode(buf[:1])
	if ok {
		return i
	}
	_, r.err = io.ReadFull(r, buf[1:n])
	if r.err != nil {
		return 0
	}
	i, _, ok = itf8.Decode(buf[:n])
	if !ok {
		r.err = fmt.Errorf("cram: failed to decode itf-8 stream %#v", buf[:n])
	}
	return i
}

// ltf8 returns the LTF-8 encoded number at the current reader position.
func (r *errorReader) ltf8() int64 {
	var buf [9]byte
	_, r.err = io.ReadFull(r, buf[:1])
	if r.err != nil {
		return 0
	}
	i, n, ok := ltf8.Decode(buf[:1])
	if ok {
		return i
	}
	_, r.err = io.ReadFull(r, buf[1:n])
	if r.err != nil {
		return 0
	}
	i, _, ok = ltf8.Decode(buf[:n])
	if !ok {
		r.err = fmt.Errorf("cram: failed to decode ltf-8 stream %#v", buf[:n])
	}
	return i
}

// featureCode bytes identify a Feature's kind in a CRAM compression
// slice's core data block, following the single-byte tag CRAM uses ahead
// of each feature's itf8-encoded, gap-delta-coded read position.
const (
	codeSubstitution  = 'X'
	codeInsertion     = 'I'
	codeDeletion      = 'D'
	codeInsertBase    = 'i'
	codeReferenceSkip = 'N'
	codeSoftClip      = 'S'
	codePadding       = 'P'
	codeHardClip      = 'H'
)

// DecodeFeatures reads n Features from r. Each feature's position is
// stored as an itf8-encoded gap from the position one past the previous
// feature. Insertion and soft-clip byte counts are ltf8-encoded rather
// than itf8-encoded, since they are bounded only by read length, which
// for long-read platforms can exceed the 4-byte itf8 range; every other
// length field is itf8-encoded, following the teacher's container and
// slice header fields.
func DecodeFeatures(r io.Reader, n int) ([]Feature, error) {
	er := errorReader{r: r}
	features := make([]Feature, 0, n)
	pos := int32(0)
	for i := 0; i < n; i++ {
		var tag [1]byte
		if _, err := io.ReadFull(&er, tag[:]); err != nil {
			return nil, err
		}
		gap := er.itf8()
		if er.err != nil {
			return nil, er.err
		}
		pos += gap + 1

		f := Feature{Pos: pos}
		switch tag[0] {
		case codeSubstitution:
			f.Kind = FeatureSubstitution
			var code [1]byte
			io.ReadFull(&er, code[:])
			f.Code = code[0]
		case codeInsertion:
			f.Kind = FeatureInsertion
			length := er.ltf8()
			f.Bases = make([]byte, length)
			io.ReadFull(&er, f.Bases)
		case codeDeletion:
			f.Kind = FeatureDeletion
			f.Len = er.itf8()
		case codeInsertBase:
			f.Kind = FeatureInsertBase
			var b [1]byte
			io.ReadFull(&er, b[:])
			f.Base = b[0]
		case codeReferenceSkip:
			f.Kind = FeatureReferenceSkip
			f.Len = er.itf8()
		case codeSoftClip:
			f.Kind = FeatureSoftClip
			length := er.ltf8()
			f.Bases = make([]byte, length)
			io.ReadFull(&er, f.Bases)
		case codePadding:
			f.Kind = FeaturePadding
			f.Len = er.itf8()
		case codeHardClip:
			f.Kind = FeatureHardClip
			f.Len = er.itf8()
		default:
			return nil, fmt.Errorf("cram: unrecognised feature code: %q", tag[0])
		}
		if er.err != nil {
			return nil, er.err
		}
		features = append(features, f)
	}
	return features, nil
}
