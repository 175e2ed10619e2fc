package bio

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/evolbioinfo/goalign/io/fasta"
)

// MSA is a multiple sequence alignment keyed by taxon name. All
// sequences have the same number of aligned sites.
type MSA struct {
	seqs   map[string]DigitalSeq
	length int
}

// NewMSA creates an empty alignment.
func NewMSA() *MSA {
	return &MSA{seqs: make(map[string]DigitalSeq)}
}

// ReadMSAFasta loads an alignment from FASTA.
func ReadMSAFasta(rd io.Reader) (*MSA, error) {
	aln, err := fasta.NewParser(rd).Parse()
	if err != nil {
		return nil, err
	}

	msa := NewMSA()
	for _, seq := range aln.Sequences() {
		if err := msa.Add(NewDigitalSeq(seq.Name(), seq.Sequence())); err != nil {
			return nil, err
		}
	}
	if msa.NumSeqs() == 0 {
		return nil, errors.New("empty alignment")
	}
	return msa, nil
}

// Add appends a sequence to the alignment. The first sequence sets the
// number of aligned sites.
func (m *MSA) Add(seq DigitalSeq) error {
	if _, ok := m.seqs[seq.Name]; ok {
		return fmt.Errorf("duplicate sequence name <%s>", seq.Name)
	}
	if len(m.seqs) == 0 {
		m.length = seq.Len()
	} else if seq.Len() != m.length {
		return fmt.Errorf("sequence <%s> has %d sites, alignment has %d",
			seq.Name, seq.Len(), m.length)
	}
	m.seqs[seq.Name] = seq
	return nil
}

// Get returns the sequence for a taxon name.
func (m *MSA) Get(name string) (DigitalSeq, bool) {
	seq, ok := m.seqs[name]
	return seq, ok
}

// NumSeqs returns the number of sequences.
func (m *MSA) NumSeqs() int {
	return len(m.seqs)
}

// NumAlignSites returns the number of aligned sites.
func (m *MSA) NumAlignSites() int {
	return m.length
}

// Names returns all taxon names in deterministic order.
func (m *MSA) Names() []string {
	names := make([]string, 0, len(m.seqs))
	for name := range m.seqs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
