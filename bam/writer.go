// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/biogo/htscore/internal/region"
	"github.com/biogo/htscore/sam"
)

// maxCigarOps is the largest CIGAR operation count the wire n_cigar_op
// field, a uint16, can represent directly.
const maxCigarOps = 1<<16 - 1

// countWriter tracks the number of bytes written to the wrapped writer,
// standing in for the BGZF virtual offset a real block writer would report.
type countWriter struct {
	w io.Writer
	n int64
}

func (c *countWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func (c *countWriter) pos() region.VirtualPosition {
	return region.NewVirtualPosition(c.n, 0)
}

// Writer implements BAM data writing.
type Writer struct {
	h *sam.Header

	w   *countWriter
	buf bytes.Buffer

	lastChunk region.Chunk
}

// NewWriter returns a new Writer, writing the BAM header block for h
// immediately.
func NewWriter(w io.Writer, h *sam.Header) (*Writer, error) {
	cw := &countWriter{w: w}
	bw := &Writer{w: cw, h: h}
	if err := bw.writeHeader(h); err != nil {
		return nil, err
	}
	bw.lastChunk.End = cw.pos()
	return bw, nil
}

func (bw *Writer) writeHeader(h *sam.Header) error {
	bw.buf.Reset()
	if err := h.EncodeBinary(&bw.buf); err != nil {
		return errorf(Io, "failed to encode header: %v", err)
	}
	_, err := bw.w.Write(bw.buf.Bytes())
	if err != nil {
		return errorf(Io, "failed to write header: %v", err)
	}
	return nil
}

// LastChunk returns the region.Chunk corresponding to the last Write
// operation.
func (bw *Writer) LastChunk() region.Chunk { return bw.lastChunk }

// Write writes r to the BAM stream, applying the oversized-CIGAR escape
// when r.Cigar has more operations than the wire format's 16-bit count can
// hold.
func (bw *Writer) Write(r *sam.Record) error {
	if len(r.Name) == 0 || len(r.Name) > 254 {
		return errorf(InvalidInput, "name absent or too long: %q", r.Name)
	}
	if r.Qual != nil && len(r.Qual) != r.Seq.Length {
		return errorf(InvalidInput, "sequence/quality length mismatch")
	}

	wireCigar, data, err := prepareCigarForWire(r)
	if err != nil {
		return err
	}

	dataBytes := buildData(data)
	recLen := bamFixedRemainder +
		len(r.Name) + 1 + // Null terminated.
		len(wireCigar)<<2 +
		len(r.Seq.Seq) +
		len(r.Qual) +
		len(dataBytes)

	bw.buf.Reset()
	wb := &errWriter{w: &bw.buf}
	bin := binaryWriter{w: wb}

	bin.writeInt32(int32(recLen))
	bin.writeInt32(int32(r.RefID()))
	bin.writeInt32(int32(r.Pos))
	bin.writeUint8(byte(len(r.Name) + 1))
	bin.writeUint8(r.MapQ)
	bin.writeUint16(uint16(r.Bin()))
	bin.writeUint16(uint16(len(wireCigar)))
	bin.writeUint16(uint16(r.Flags))
	bin.writeInt32(int32(r.Seq.Length))
	bin.writeInt32(int32(mateRefID(r)))
	bin.writeInt32(int32(r.MatePos))
	bin.writeInt32(int32(r.TempLen))

	wb.Write(append([]byte(r.Name), 0))
	writeCigarOps(&bin, wireCigar)
	wb.Write(doublets(r.Seq.Seq).Bytes())
	if r.Qual != nil {
		wb.Write(r.Qual)
	} else {
		for i := 0; i < r.Seq.Length; i++ {
			wb.WriteByte(0xff)
		}
	}
	wb.Write(dataBytes)
	if wb.err != nil {
		return errorf(Io, "failed to build record: %v", wb.err)
	}

	start := bw.w.pos()
	_, werr := bw.w.Write(bw.buf.Bytes())
	bw.lastChunk = region.Chunk{Start: start, End: bw.w.pos()}
	if werr != nil {
		return errorf(Io, "failed to write record: %v", werr)
	}
	return nil
}

func mateRefID(r *sam.Record) int {
	if r.MateRef == nil {
		return -1
	}
	return r.MateRef.ID()
}

// prepareCigarForWire returns the CIGAR to place in the wire n_cigar_op
// slot and the data set to write, applying the oversized-CIGAR escape when
// the real CIGAR has more than maxCigarOps operations: the wire CIGAR
// becomes a 2-operation placeholder (a soft clip spanning the whole read
// followed by a reference skip spanning the whole reference sequence) and
// the real CIGAR is appended as a CG:B:I tag. The record must carry a
// reference, since the placeholder's reference skip length comes from the
// reference sequence length, not from the real CIGAR's own reference span.
func prepareCigarForWire(r *sam.Record) (sam.Cigar, sam.Data, error) {
	if len(r.Cigar) <= maxCigarOps {
		return r.Cigar, r.Data, nil
	}
	if r.Ref == nil {
		return nil, nil, errorf(MissingReference, "oversized cigar requires a reference sequence")
	}
	placeholder := sam.Cigar{
		sam.NewCigarOp(sam.CigarSoftClipped, r.Seq.Length),
		sam.NewCigarOp(sam.CigarSkipped, r.Ref.Len()),
	}
	raw := make([]uint32, len(r.Cigar))
	for i, co := range r.Cigar {
		raw[i] = uint32(co)
	}
	cg, err := sam.NewValue(sam.CigarOverflowTag, raw)
	if err != nil {
		return nil, nil, errorf(InvalidInput, "failed to build CG overflow tag: %v", err)
	}
	data := make(sam.Data, 0, len(r.Data)+1)
	data = append(data, r.Data...)
	if err := data.Insert(cg); err != nil {
		return nil, nil, errorf(InvalidInput, "record already carries a CG tag and has an oversized cigar")
	}
	return placeholder, data, nil
}

func writeCigarOps(bin *binaryWriter, co sam.Cigar) {
	for _, o := range co {
		bin.writeUint32(uint32(o))
		if bin.w.err != nil {
			return
		}
	}
}

// Close is a no-op on Writer since it owns no resources of its own; it
// exists so Writer satisfies io.Closer for callers layering a compressed
// block writer underneath.
func (bw *Writer) Close() error { return nil }

type errWriter struct {
	w   *bytes.Buffer
	err error
}

func (w *errWriter) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	var n int
	n, w.err = w.w.Write(p)
	return n, w.err
}

func (w *errWriter) WriteByte(b byte) error {
	if w.err != nil {
		return w.err
	}
	w.err = w.w.WriteByte(b)
	return w.err
}

type binaryWriter struct {
	w   *errWriter
	buf [4]byte
}

func (w *binaryWriter) writeUint8(v uint8) {
	w.buf[0] = v
	w.w.Write(w.buf[:1])
}

func (w *binaryWriter) writeUint16(v uint16) {
	binary.LittleEndian.PutUint16(w.buf[:2], v)
	w.w.Write(w.buf[:2])
}

func (w *binaryWriter) writeInt32(v int32) {
	binary.LittleEndian.PutUint32(w.buf[:4], uint32(v))
	w.w.Write(w.buf[:4])
}

func (w *binaryWriter) writeUint32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	w.w.Write(w.buf[:4])
}
