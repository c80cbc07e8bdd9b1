// Copyright ©2012 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bam

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/biogo/htscore/sam"
)

var jumps = [256]int{
	'A': 1,
	'c': 1, 'C': 1,
	's': 2, 'S': 2,
	'i': 4, 'I': 4,
	'f': 4,
	'Z': -1,
	'H': -1,
	'B': -1,
}

// parseData splits the wire-encoded auxiliary data block of a record into
// its individual sam.Values, backed by the original data, and checks for
// duplicate tags as it goes.
func parseData(data []byte) (sam.Data, error) {
	if len(data) == 0 {
		return nil, nil
	}
	out := make(sam.Data, 0, 4)
	for i := 0; i+2 < len(data); {
		t := data[i+2]
		switch j := jumps[t]; {
		case j > 0:
			j += 3
			if err := out.Insert(sam.Value(data[i : i+j : i+j])); err != nil {
				return nil, err
			}
			i += j
		case j < 0:
			switch t {
			case 'Z', 'H':
				var (
					j int
					v byte
				)
				for j, v = range data[i:] {
					if v == 0 { // C string termination.
						break
					}
				}
				if err := out.Insert(sam.Value(data[i : i+j : i+j])); err != nil {
					return nil, err
				}
				i += j + 1
			case 'B':
				var length int32
				err := binary.Read(bytes.NewReader(data[i+4:i+8]), binary.LittleEndian, &length)
				if err != nil {
					return nil, fmt.Errorf("bam: failed to read array length: %v", err)
				}
				j = int(length)*jumps[data[i+3]] + int(unsafe.Sizeof(length)) + 4
				if err := out.Insert(sam.Value(data[i : i+j : i+j])); err != nil {
					return nil, err
				}
				i += j
			}
		default:
			return nil, fmt.Errorf("bam: unrecognised auxiliary field type: %q", t)
		}
	}
	return out, nil
}

// buildData serializes a sam.Data set into the wire block format: each
// Value's bytes back to back, with 'Z' and 'H' values null-terminated.
func buildData(d sam.Data) []byte {
	var out []byte
	for _, v := range d {
		out = append(out, []byte(v)...)
		switch v.Type() {
		case 'Z', 'H':
			out = append(out, 0)
		}
	}
	return out
}
