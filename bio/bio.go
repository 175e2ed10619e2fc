// Package bio provides the digital DNA alphabet and sequences.
package bio

import (
	"bytes"
	"fmt"
)

// Digital codes of the four bases. Every other symbol (including N and
// the alignment gap) is encoded as GapCode and treated as missing data.
const (
	BaseA byte = iota
	BaseC
	BaseG
	BaseT
	// GapCode is the code of a gap or unknown symbol.
	GapCode
)

const (
	// NBase is the number of concrete bases.
	NBase = 4
	// NSymbol is the number of observable symbols (bases plus gap).
	NSymbol = 5
)

// baseLetters maps digital codes back to their letters.
var baseLetters = [NSymbol]byte{'A', 'C', 'G', 'T', '-'}

// EncodeBase returns the digital code of a nucleotide letter. The
// letter case is ignored, U is treated as T and any unrecognized
// symbol yields GapCode.
func EncodeBase(b byte) byte {
	switch b {
	case 'A', 'a':
		return BaseA
	case 'C', 'c':
		return BaseC
	case 'G', 'g':
		return BaseG
	case 'T', 't', 'U', 'u':
		return BaseT
	}
	return GapCode
}

// DecodeBase returns the letter for a digital code.
func DecodeBase(c byte) byte {
	if int(c) >= NSymbol {
		return '-'
	}
	return baseLetters[c]
}

// IsGap tests whether a digital code is the gap/unknown code.
func IsGap(c byte) bool {
	return c >= NBase
}

// DigitalSeq is a named sequence stored as per-site digital codes.
type DigitalSeq struct {
	Name  string
	Codes []byte
}

// NewDigitalSeq encodes a raw nucleotide string.
func NewDigitalSeq(name, seq string) DigitalSeq {
	codes := make([]byte, len(seq))
	for i := 0; i < len(seq); i++ {
		codes[i] = EncodeBase(seq[i])
	}
	return DigitalSeq{Name: name, Codes: codes}
}

// NewGapSeq creates an unobserved sequence of the given length.
func NewGapSeq(name string, length int) DigitalSeq {
	codes := make([]byte, length)
	for i := range codes {
		codes[i] = GapCode
	}
	return DigitalSeq{Name: name, Codes: codes}
}

// Len returns the number of aligned sites.
func (s DigitalSeq) Len() int {
	return len(s.Codes)
}

// Copy creates an independent copy of the sequence.
func (s DigitalSeq) Copy() DigitalSeq {
	codes := make([]byte, len(s.Codes))
	copy(codes, s.Codes)
	return DigitalSeq{Name: s.Name, Codes: codes}
}

// Letters returns the sequence as a nucleotide string.
func (s DigitalSeq) Letters() string {
	var buffer bytes.Buffer
	for _, c := range s.Codes {
		buffer.WriteByte(DecodeBase(c))
	}
	return buffer.String()
}

// Wrap inputs a string and wraps it so string length is n characters
// or less.
func Wrap(seq string, n int) (s string) {
	for i := 0; i < len(seq); i += n {
		end := i + n
		if end > len(seq) {
			end = len(seq)
		}
		s += seq[i:end] + "\n"
	}
	return
}

// String returns a sequence in FASTA format.
func (s DigitalSeq) String() string {
	return fmt.Sprintf(">%s\n%s", s.Name, Wrap(s.Letters(), 80))
}
