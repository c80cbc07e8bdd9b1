// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bam implements BAM record encoding and decoding. The underlying
// compressed block stream (BGZF) is treated as opaque: Reader and Writer
// consume and produce a byte stream and report positions in it as
// region.VirtualPosition values, but do not themselves frame or compress
// blocks.
package bam

import (
	"encoding/binary"
	"io"
	"unsafe"

	"github.com/biogo/htscore/internal/region"
	"github.com/biogo/htscore/sam"
)

// countReader tracks the number of bytes consumed from the wrapped reader,
// standing in for the BGZF virtual offset a real block reader would report.
type countReader struct {
	r io.Reader
	n int64
}

func (c *countReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countReader) pos() region.VirtualPosition {
	return region.NewVirtualPosition(c.n, 0)
}

// Reader implements BAM data reading.
type Reader struct {
	r *countReader
	h *sam.Header

	omit int

	chunk     *region.Chunk
	lastChunk region.Chunk

	buf [4]byte
}

// Omit values accepted by Reader.Omit.
const (
	None                  = iota // Omit no field data from the record.
	DataFields                   // Omit auxiliary data fields.
	AllVariableLengthData        // Omit sequence, quality and data fields.
)

// NewReader returns a new Reader reading the BAM byte stream from r, which
// must begin with the BAM header block.
func NewReader(r io.Reader) (*Reader, error) {
	cr := &countReader{r: r}
	h, _ := sam.NewHeader(nil, nil)
	br := &Reader{r: cr, h: h}
	if err := br.h.DecodeBinary(cr); err != nil {
		return nil, errorf(StructuralDecode, "failed to decode header: %v", err)
	}
	br.lastChunk.End = cr.pos()
	return br, nil
}

// Header returns the Header held by the Reader.
func (br *Reader) Header() *sam.Header { return br.h }

// Omit specifies what portions of the Record to omit reading. When o is
// None, a full sam.Record is returned by Read; when o is DataFields the
// auxiliary data fields are omitted; when o is AllVariableLengthData,
// sequence, quality and data are all omitted.
func (br *Reader) Omit(o int) { br.omit = o }

// SetChunk limits reading to the given chunk of the underlying stream.
// Since Reader does not itself seek a compressed block store, the caller
// is responsible for having already positioned the wrapped io.Reader at
// c.Start; SetChunk only records where reading should stop.
func (br *Reader) SetChunk(c *region.Chunk) { br.chunk = c }

// LastChunk returns the region.Chunk corresponding to the last Read
// operation. It is only valid if the last Read returned a nil error.
func (br *Reader) LastChunk() region.Chunk { return br.lastChunk }

type bamRecordFixed struct {
	blockSize int32
	refID     int32
	pos       int32
	nLen      uint8
	mapQ      uint8
	bin       uint16
	nCigar    uint16
	flags     sam.Flags
	lSeq      int32
	nextRefID int32
	nextPos   int32
	tLen      int32
}

var (
	lenFieldSize      = binary.Size(bamRecordFixed{}.blockSize)
	bamFixedRemainder = binary.Size(bamRecordFixed{}) - lenFieldSize
)

// buffer is a light-weight read cursor over a single record's bytes.
type buffer struct {
	off  int
	data []byte
}

func (b *buffer) bytes(n int) []byte {
	s := b.off
	b.off += n
	return b.data[s:b.off]
}

func (b *buffer) len() int { return len(b.data) - b.off }

func (b *buffer) discard(n int) { b.off += n }

func (b *buffer) readUint8() uint8 {
	b.off++
	return b.data[b.off-1]
}

func (b *buffer) readUint16() uint16 { return binary.LittleEndian.Uint16(b.bytes(2)) }

func (b *buffer) readInt32() int32 { return int32(binary.LittleEndian.Uint32(b.bytes(4))) }

func (b *buffer) readUint32() uint32 { return binary.LittleEndian.Uint32(b.bytes(4)) }

// newBuffer reads one length-prefixed record from br's underlying stream.
func newBuffer(br *Reader) (*buffer, error) {
	n, err := io.ReadFull(br.r, br.buf[:4])
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errorf(Io, "failed to read record length: %v", err)
	}
	if n != 4 {
		return nil, errorf(StructuralDecode, "short block size")
	}
	b := &buffer{data: br.buf[:4]}
	size := int(b.readInt32())
	if size < bamFixedRemainder {
		return nil, errorf(StructuralDecode, "record shorter than fixed fields: %d", size)
	}
	b.off, b.data = 0, make([]byte, size)
	n, err = io.ReadFull(br.r, b.data)
	if err != nil {
		return nil, errorf(Io, "failed to read record body: %v", err)
	}
	if n != size {
		return nil, errorf(StructuralDecode, "truncated record")
	}
	br.lastChunk = region.Chunk{Start: br.lastChunk.End, End: br.r.pos()}
	return b, nil
}

// Read returns the next sam.Record in the BAM stream.
func (br *Reader) Read() (*sam.Record, error) {
	if br.chunk != nil && br.lastChunk.End >= br.chunk.End {
		return nil, io.EOF
	}

	b, err := newBuffer(br)
	if err != nil {
		return nil, err
	}

	var rec sam.Record
	refID := b.readInt32()
	rec.Pos = int(b.readInt32())
	nLen := b.readUint8()
	rec.MapQ = b.readUint8()
	b.discard(2) // bin: recomputed by Record.Bin, never trusted from the wire.
	nCigar := b.readUint16()
	rec.Flags = sam.Flags(b.readUint16())
	lSeq := int32(b.readUint32())
	nextRefID := int32(b.readInt32())
	rec.MatePos = int(b.readInt32())
	rec.TempLen = int(b.readInt32())

	rec.Name = string(b.bytes(int(nLen) - 1))
	b.discard(1) // name's null terminator.

	rec.Cigar = readCigarOps(b.bytes(int(nCigar) * 4))

	var seq doublets
	var dataBytes []byte
	if br.omit >= AllVariableLengthData {
		goto resolve
	}

	seq = make(doublets, (lSeq+1)>>1)
	*(*[]byte)(unsafe.Pointer(&seq)) = b.bytes(int(lSeq+1) >> 1)
	rec.Seq = sam.Seq{Length: int(lSeq), Seq: seq}
	rec.Qual = b.bytes(int(lSeq))

	if br.omit >= DataFields {
		goto resolve
	}
	dataBytes = b.bytes(b.len())
	rec.Data, err = parseData(dataBytes)
	if err != nil {
		return nil, errorf(StructuralDecode, "failed to parse data fields: %v", err)
	}
	if err := resolveOversizedCigar(&rec); err != nil {
		return nil, errorf(StructuralDecode, "failed to resolve oversized cigar: %v", err)
	}

resolve:
	refs := int32(len(br.h.Refs()))
	if refID != -1 {
		if refID < -1 || refID >= refs {
			return nil, errorf(MissingReference, "reference id out of range: %d", refID)
		}
		rec.Ref = br.h.Refs()[refID]
	}
	if nextRefID != -1 {
		if refID == nextRefID {
			rec.MateRef = rec.Ref
			return &rec, nil
		}
		if nextRefID < -1 || nextRefID >= refs {
			return nil, errorf(MissingReference, "mate reference id out of range: %d", nextRefID)
		}
		rec.MateRef = br.h.Refs()[nextRefID]
	}

	return &rec, nil
}

// isCigarOverflowPlaceholder reports whether co has the shape of the
// 2-operation CIGAR the escape mechanism writes in place of a CIGAR that
// does not fit the 16-bit operation count: a soft clip of lSeq bases
// followed by a reference skip. The skip length is not checked.
func isCigarOverflowPlaceholder(co sam.Cigar, lSeq int32) bool {
	return len(co) == 2 &&
		co[0].Type() == sam.CigarSoftClipped && co[0].Len() == int(lSeq) &&
		co[1].Type() == sam.CigarSkipped
}

// resolveOversizedCigar substitutes the real CIGAR carried in the CG tag for
// the 2-operation placeholder BAM writes when a CIGAR overflows the 16-bit
// wire operation count, and removes the CG tag once consumed.
func resolveOversizedCigar(rec *sam.Record) error {
	if !isCigarOverflowPlaceholder(rec.Cigar, int32(rec.Seq.Length)) {
		return nil
	}
	v := rec.Data.Get(sam.CigarOverflowTag)
	if v == nil {
		return nil
	}
	raw, ok := v.Interface().([]uint32)
	if !ok {
		return nil
	}
	co := make(sam.Cigar, len(raw))
	for i, c := range raw {
		co[i] = sam.CigarOp(c)
	}
	rec.Cigar = co
	rec.Data.Delete(sam.CigarOverflowTag)
	return nil
}

// len(cb) must be a multiple of 4.
func readCigarOps(cb []byte) []sam.CigarOp {
	co := make([]sam.CigarOp, len(cb)/4)
	for i := range co {
		co[i] = sam.CigarOp(binary.LittleEndian.Uint32(cb[i*4 : (i+1)*4]))
	}
	return co
}

type doublets []sam.Doublet

func (np doublets) Bytes() []byte { return *(*[]byte)(unsafe.Pointer(&np)) }

// RecordReader wraps types that can read sam.Records, letting sam.Iterator
// drive either a sam.Reader or a bam.Reader.
type RecordReader interface {
	Read() (*sam.Record, error)
}

// Iterator wraps a Reader to provide a convenient loop interface for
// reading BAM data chunk by chunk, as produced by a csi.Index query.
type Iterator struct {
	r *Reader

	chunks []region.Chunk

	rec *sam.Record
	err error
}

// NewIterator returns an Iterator that reads only the given chunks from r.
// The caller must have already positioned r's underlying stream so that the
// first chunk's data is next to be read.
func NewIterator(r *Reader, chunks []region.Chunk) (*Iterator, error) {
	if len(chunks) == 0 {
		return &Iterator{r: r, err: io.EOF}, nil
	}
	r.SetChunk(&chunks[0])
	return &Iterator{r: r, chunks: chunks[1:]}, nil
}

// Next advances the Iterator past the next record, available through
// Record. It returns false at the end of the chunk list or on the first
// error.
func (i *Iterator) Next() bool {
	if i.err != nil {
		return false
	}
	i.rec, i.err = i.r.Read()
	if len(i.chunks) != 0 && i.err == io.EOF {
		i.r.SetChunk(&i.chunks[0])
		i.chunks = i.chunks[1:]
		return i.Next()
	}
	return i.err == nil
}

// Error returns the first non-EOF error encountered by the Iterator.
func (i *Iterator) Error() error {
	if i.err == io.EOF {
		return nil
	}
	return i.err
}

// Record returns the most recent record read by a call to Next.
func (i *Iterator) Record() *sam.Record { return i.rec }

// Close releases the underlying Reader's chunk restriction.
func (i *Iterator) Close() error {
	i.r.SetChunk(nil)
	return i.Error()
}
