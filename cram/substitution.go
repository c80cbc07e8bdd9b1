// Copyright ©2017 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cram

// Base is one of the five reference bases a CRAM substitution matrix is
// indexed by. The zero value is BaseN, matching the fallback used when a
// reference base cannot be resolved to one of A, C, G or T.
type Base byte

const (
	BaseN Base = iota
	BaseA
	BaseC
	BaseG
	BaseT
)

// ParseBase converts a reference sequence byte to a Base, falling back to
// BaseN for any byte that is not one of A, C, G or T (upper or lower case).
func ParseBase(b byte) Base {
	switch b {
	case 'A', 'a':
		return BaseA
	case 'C', 'c':
		return BaseC
	case 'G', 'g':
		return BaseG
	case 'T', 't':
		return BaseT
	default:
		return BaseN
	}
}

func (b Base) String() string {
	switch b {
	case BaseA:
		return "A"
	case BaseC:
		return "C"
	case BaseG:
		return "G"
	case BaseT:
		return "T"
	default:
		return "N"
	}
}

// Byte returns the ASCII base letter for b.
func (b Base) Byte() byte { return b.String()[0] }

// SubstitutionMatrix is the per-slice table a CRAM compression header uses
// to recover the read base of a substitution feature from the reference
// base it diverges from and a 2-bit code. Row BaseN is populated but is
// never indexed by a code produced from real read data; it exists so a
// reference base that could not be classified (ParseBase's fallback) still
// has a well defined, if arbitrary, row to read from.
type SubstitutionMatrix [5][4]Base

// NewSubstitutionMatrix builds a SubstitutionMatrix from the 5 packed
// bytes CRAM stores in a compression header's preservation map, one byte
// per reference base in the order A, C, G, T, N. Each byte packs four
// 2-bit codes, most significant first, naming the substituted base for
// codes 0 through 3 in the row for that reference base.
func NewSubstitutionMatrix(packed [5]byte) *SubstitutionMatrix {
	var m SubstitutionMatrix
	order := [5]Base{BaseA, BaseC, BaseG, BaseT, BaseN}
	for i, ref := range order {
		row := packed[i]
		bases := substitutionCandidates(ref)
		for code := 0; code < 4; code++ {
			shift := uint(6 - 2*code)
			m[ref][code] = bases[(row>>shift)&0x3]
		}
	}
	return &m
}

// substitutionCandidates returns the four bases a substitution code can
// name for reference base ref, in the fixed order CRAM assigns codes: the
// three bases other than ref, plus ref itself as a last-resort slot for a
// malformed matrix. For BaseN the four candidates are A, C, G and T.
func substitutionCandidates(ref Base) [4]Base {
	all := [5]Base{BaseA, BaseC, BaseG, BaseT, BaseN}
	var out [4]Base
	i := 0
	for _, b := range all {
		if b == ref || b == BaseN {
			continue
		}
		out[i] = b
		i++
	}
	for ; i < 4; i++ {
		out[i] = ref
	}
	return out
}

// Get returns the base a substitution feature resolves to given the
// reference base it replaces and the feature's 2-bit code.
func (m *SubstitutionMatrix) Get(ref Base, code byte) Base {
	return m[ref][code&0x3]
}
