// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

import (
	"bytes"
	"testing"

	"github.com/biogo/htscore/internal/region"
	"github.com/biogo/htscore/sam"

	"gopkg.in/check.v1"
)

func Test(t *testing.T) { check.TestingT(t) }

type S struct{}

var _ = check.Suite(&S{})

func testHeader(c *check.C) *sam.Header {
	h, err := sam.NewHeader(nil, nil)
	c.Assert(err, check.IsNil)
	ref, err := sam.NewReference("ref", "", "", 1000, nil, nil)
	c.Assert(err, check.IsNil)
	c.Assert(h.AddReference(ref), check.IsNil)
	return h
}

// TestRoundTripUnmapped checks that a minimal unplaced, unmapped record
// round-trips through the wire format byte for byte.
func (s *S) TestRoundTripUnmapped(c *check.C) {
	h := testHeader(c)
	rec, err := sam.NewRecord("read", nil, nil, -1, -1, 0, 0, nil, nil, nil, nil)
	c.Assert(err, check.IsNil)
	rec.Flags = sam.Unmapped

	var buf bytes.Buffer
	w, err := NewWriter(&buf, h)
	c.Assert(err, check.IsNil)
	c.Assert(w.Write(rec), check.IsNil)

	r, err := NewReader(&buf)
	c.Assert(err, check.IsNil)
	got, err := r.Read()
	c.Assert(err, check.IsNil)

	c.Check(got.Name, check.Equals, rec.Name)
	c.Check(got.Flags, check.Equals, rec.Flags)
	c.Check(got.Ref, check.IsNil)
	c.Check(got.Pos, check.Equals, -1)
}

// TestRoundTripMapped checks a mapped record carrying a CIGAR, sequence and
// data fields round-trips, including the derived bin.
func (s *S) TestRoundTripMapped(c *check.C) {
	h := testHeader(c)
	ref := h.Refs()[0]
	co := []sam.CigarOp{
		sam.NewCigarOp(sam.CigarMatch, 8),
		sam.NewCigarOp(sam.CigarInsertion, 2),
		sam.NewCigarOp(sam.CigarMatch, 4),
	}
	rec, err := sam.NewRecord("read", ref, ref, 10, 10, 0, 40, co, []byte("ACGTACGTACGTACGT")[:14], nil, nil)
	c.Assert(err, check.IsNil)
	nm, err := sam.NewValue(sam.NewTag("NM"), uint(1))
	c.Assert(err, check.IsNil)
	c.Assert(rec.Data.Insert(nm), check.IsNil)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, h)
	c.Assert(err, check.IsNil)
	c.Assert(w.Write(rec), check.IsNil)

	r, err := NewReader(&buf)
	c.Assert(err, check.IsNil)
	got, err := r.Read()
	c.Assert(err, check.IsNil)

	c.Check(got.Pos, check.Equals, rec.Pos)
	c.Check(got.Cigar, check.DeepEquals, rec.Cigar)
	c.Check(got.Seq.Expand(), check.DeepEquals, rec.Seq.Expand())
	c.Check(got.Bin(), check.Equals, rec.Bin())
	c.Assert(got.Data, check.HasLen, 1)
	c.Check(got.Data[0].Tag(), check.Equals, sam.NewTag("NM"))
}

// TestOversizedCigarEscape checks that a CIGAR with more operations than
// the wire format's 16-bit count can hold is written as a 2-operation
// placeholder plus a CG:B:I tag, and that Read resolves it transparently.
func (s *S) TestOversizedCigarEscape(c *check.C) {
	h := testHeader(c)
	ref := h.Refs()[0]

	const n = maxCigarOps + 5
	co := make([]sam.CigarOp, n)
	for i := range co {
		co[i] = sam.NewCigarOp(sam.CigarMatch, 1)
	}
	rec, err := sam.NewRecord("read", ref, nil, 0, -1, 0, 0, co, make([]byte, n), nil, nil)
	c.Assert(err, check.IsNil)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, h)
	c.Assert(err, check.IsNil)
	c.Assert(w.Write(rec), check.IsNil)

	r, err := NewReader(&buf)
	c.Assert(err, check.IsNil)
	got, err := r.Read()
	c.Assert(err, check.IsNil)

	c.Check(got.Cigar, check.DeepEquals, rec.Cigar)
	c.Check(got.Data.Get(sam.CigarOverflowTag), check.IsNil)
}

// TestOversizedCigarWireEncoding checks the literal wire bytes of the
// oversized-CIGAR escape: the placeholder CIGAR's reference-skip length
// must come from the reference sequence's own length, not from the real
// CIGAR's consumed-reference span, and a record with no reference must be
// rejected rather than silently writing a wrong length.
func (s *S) TestOversizedCigarWireEncoding(c *check.C) {
	h, err := sam.NewHeader(nil, nil)
	c.Assert(err, check.IsNil)
	ref, err := sam.NewReference("sq0", "", "", 131072, nil, nil)
	c.Assert(err, check.IsNil)
	c.Assert(h.AddReference(ref), check.IsNil)

	const n = maxCigarOps + 1 // 65536
	co := make([]sam.CigarOp, n)
	for i := range co {
		co[i] = sam.NewCigarOp(sam.CigarMatch, 1)
	}
	rec, err := sam.NewRecord("r", ref, nil, 0, -1, 0, 0, co, bytes.Repeat([]byte("A"), n), nil, nil)
	c.Assert(err, check.IsNil)
	nh, err := sam.NewValue(sam.NewTag("NH"), uint(1))
	c.Assert(err, check.IsNil)
	c.Assert(rec.Data.Insert(nh), check.IsNil)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, h)
	c.Assert(err, check.IsNil)
	c.Assert(w.Write(rec), check.IsNil)

	r, err := NewReader(&buf)
	c.Assert(err, check.IsNil)
	b, err := newBuffer(r)
	c.Assert(err, check.IsNil)

	b.readInt32()          // refID
	b.readInt32()          // pos
	nLen := b.readUint8()  // l_read_name
	b.readUint8()          // mapQ
	b.discard(2)           // bin
	nCigar := b.readUint16()
	b.discard(2)            // flags
	lSeq := int32(b.readUint32())
	b.discard(12)           // next_refID, next_pos, tlen
	b.discard(int(nLen))    // read name, null terminated

	c.Assert(int(nCigar), check.Equals, 2)
	cigarBytes := b.bytes(int(nCigar) * 4)
	c.Check(cigarBytes, check.DeepEquals, []byte{
		0x04, 0x00, 0x10, 0x00, // S 65536
		0x03, 0x00, 0x20, 0x00, // N 131072
	})
	wireCigar := readCigarOps(cigarBytes)
	c.Check(wireCigar, check.DeepEquals, sam.Cigar{
		sam.NewCigarOp(sam.CigarSoftClipped, n),
		sam.NewCigarOp(sam.CigarSkipped, 131072),
	})

	b.discard(int(lSeq+1) >> 1) // packed sequence
	b.discard(int(lSeq))        // quality
	data, err := parseData(b.bytes(b.len()))
	c.Assert(err, check.IsNil)

	cg := data.Get(sam.CigarOverflowTag)
	c.Assert(cg, check.NotNil)
	rawOps, ok := cg.Interface().([]uint32)
	c.Assert(ok, check.Equals, true)
	c.Assert(rawOps, check.HasLen, n)
	for _, op := range rawOps {
		c.Check(op, check.Equals, uint32(sam.NewCigarOp(sam.CigarMatch, 1)))
	}
}

// TestOversizedCigarWithoutReferenceFails checks that the oversized-CIGAR
// escape refuses to write when the record has no reference to take the
// placeholder's reference-skip length from.
func (s *S) TestOversizedCigarWithoutReferenceFails(c *check.C) {
	const n = maxCigarOps + 1
	co := make([]sam.CigarOp, n)
	for i := range co {
		co[i] = sam.NewCigarOp(sam.CigarMatch, 1)
	}
	rec, err := sam.NewRecord("r", nil, nil, -1, -1, 0, 0, co, make([]byte, n), nil, nil)
	c.Assert(err, check.IsNil)
	rec.Flags = sam.Unmapped

	h := testHeader(c)
	var buf bytes.Buffer
	w, err := NewWriter(&buf, h)
	c.Assert(err, check.IsNil)

	err = w.Write(rec)
	c.Assert(err, check.NotNil)
	bamErr, ok := err.(*Error)
	c.Assert(ok, check.Equals, true)
	c.Check(bamErr.Kind, check.Equals, MissingReference)
}

// TestDuplicateTagRejected checks that a wire data block repeating the same
// tag twice is rejected by Read rather than silently shadowing the first
// occurrence.
func (s *S) TestDuplicateTagRejected(c *check.C) {
	nm1, err := sam.NewValue(sam.NewTag("NM"), uint(1))
	c.Assert(err, check.IsNil)
	nm2, err := sam.NewValue(sam.NewTag("NM"), uint(2))
	c.Assert(err, check.IsNil)
	raw := append(append([]byte{}, nm1...), nm2...)

	_, err = parseData(raw)
	c.Assert(err, check.Equals, sam.ErrDuplicateTag)
}

// TestBinMatchesIndexArithmetic checks that Record.Bin agrees with the
// binning index's own bin calculation for the same interval.
func (s *S) TestBinMatchesIndexArithmetic(c *check.C) {
	h := testHeader(c)
	ref := h.Refs()[0]
	rec, err := sam.NewRecord("read", ref, nil, 100, -1, 0, 0,
		[]sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 50)}, make([]byte, 50), nil, nil)
	c.Assert(err, check.IsNil)

	want, err := region.BinFor(rec.Start(), rec.End())
	c.Assert(err, check.IsNil)
	c.Check(rec.Bin(), check.Equals, int(want))
}
