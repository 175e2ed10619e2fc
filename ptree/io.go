package ptree

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/evophylo/ptu/bio"
	"github.com/evophylo/ptu/dnamodel"
	"github.com/gonum/matrix/mat64"
)

var ptuMagic = [4]byte{'P', 'T', 'U', 'T'}

const ptuVersion uint32 = 1

// Save writes the whole tree state in the native binary format:
// topology, names, annotations, sequences, branch lengths, the
// observation table, every cached cost matrix exactly as evaluated,
// the root id and the substitution model. Little-endian throughout.
func (t *Tree) Save(w io.Writer) error {
	if t.model == nil || t.leafCost == nil {
		return fmt.Errorf("%w: cannot save a tree without a model and a loaded alignment", ErrInvalidArgument)
	}
	if _, err := w.Write(ptuMagic[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := writeBin(w, ptuVersion, int64(t.csLen), int64(len(t.id2node))); err != nil {
		return err
	}
	for _, n := range t.id2node {
		if err := writeBin(w, int64(n.ID)); err != nil {
			return err
		}
		if err := writeString(w, n.Name); err != nil {
			return err
		}
		if err := writeString(w, n.Anno); err != nil {
			return err
		}
		if err := writeBin(w, n.AnnoDist, int64(n.Seq.Len())); err != nil {
			return err
		}
		if n.Seq.Len() > 0 {
			if _, err := w.Write(n.Seq.Codes); err != nil {
				return fmt.Errorf("%w: %v", ErrIO, err)
			}
		}
	}

	type edge struct {
		u, v   int
		length float64
	}
	var edges []edge
	for _, u := range t.id2node {
		for _, v := range u.neighbors {
			if u.ID < v.ID {
				edges = append(edges, edge{u.ID, v.ID, t.lengths[u][v]})
			}
		}
	}
	if err := writeBin(w, int64(len(edges))); err != nil {
		return err
	}
	for _, e := range edges {
		if err := writeBin(w, int64(e.u), int64(e.v), e.length); err != nil {
			return err
		}
	}

	if err := writeMatrix(w, t.leafCost); err != nil {
		return err
	}

	type costEntry struct {
		u, v int
		m    *mat64.Dense
	}
	var entries []costEntry
	for _, u := range t.id2node {
		for v, m := range t.costs[u] {
			entries = append(entries, costEntry{u.ID, v.ID, m})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].u != entries[j].u {
			return entries[i].u < entries[j].u
		}
		return entries[i].v < entries[j].v
	})
	if err := writeBin(w, int64(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writeBin(w, int64(e.u), int64(e.v)); err != nil {
			return err
		}
		if err := writeMatrix(w, e.m); err != nil {
			return err
		}
	}

	if err := writeBin(w, int64(t.root.ID)); err != nil {
		return err
	}
	if err := writeString(w, t.model.Type()); err != nil {
		return err
	}
	var params bytes.Buffer
	if err := t.model.Write(&params); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := writeBin(w, int64(params.Len())); err != nil {
		return err
	}
	if _, err := w.Write(params.Bytes()); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// Load reads a tree saved by Save, replacing the receiver's state.
func (t *Tree) Load(r io.Reader) error {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if magic != ptuMagic {
		return fmt.Errorf("%w: bad magic %q", ErrIO, magic[:])
	}
	var version uint32
	var csLen, nNodes int64
	if err := readBin(r, &version, &csLen, &nNodes); err != nil {
		return err
	}
	if version != ptuVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrIO, version)
	}

	t.csLen = int(csLen)
	t.id2node = make([]*Node, nNodes)
	t.lengths = make(map[*Node]map[*Node]float64)
	t.costs = make(map[*Node]map[*Node]*mat64.Dense)
	for i := range t.id2node {
		var id, seqLen int64
		if err := readBin(r, &id); err != nil {
			return err
		}
		if id != int64(i) {
			return fmt.Errorf("%w: node id %d out of order", ErrIO, id)
		}
		n := &Node{ID: int(id)}
		var err error
		if n.Name, err = readString(r); err != nil {
			return err
		}
		if n.Anno, err = readString(r); err != nil {
			return err
		}
		if err := readBin(r, &n.AnnoDist, &seqLen); err != nil {
			return err
		}
		if seqLen > 0 {
			codes := make([]byte, seqLen)
			if _, err := io.ReadFull(r, codes); err != nil {
				return fmt.Errorf("%w: %v", ErrIO, err)
			}
			n.Seq = bio.DigitalSeq{Name: n.Name, Codes: codes}
		}
		t.id2node[i] = n
	}

	var nEdges int64
	if err := readBin(r, &nEdges); err != nil {
		return err
	}
	for i := int64(0); i < nEdges; i++ {
		var u, v int64
		var length float64
		if err := readBin(r, &u, &v, &length); err != nil {
			return err
		}
		nu, nv := t.GetNode(int(u)), t.GetNode(int(v))
		if nu == nil || nv == nil {
			return fmt.Errorf("%w: edge references unknown node %d-%d", ErrIO, u, v)
		}
		t.addEdge(nu, nv, length)
	}

	var err error
	if t.leafCost, err = readMatrix(r, bio.NBase, bio.NSymbol); err != nil {
		return err
	}

	var nCosts int64
	if err := readBin(r, &nCosts); err != nil {
		return err
	}
	for i := int64(0); i < nCosts; i++ {
		var u, v int64
		if err := readBin(r, &u, &v); err != nil {
			return err
		}
		nu, nv := t.GetNode(int(u)), t.GetNode(int(v))
		if nu == nil || nv == nil {
			return fmt.Errorf("%w: cost entry references unknown node %d-%d", ErrIO, u, v)
		}
		m, err := readMatrix(r, bio.NBase, t.csLen)
		if err != nil {
			return err
		}
		if t.costs[nu] == nil {
			t.costs[nu] = make(map[*Node]*mat64.Dense)
		}
		t.costs[nu][nv] = m
	}

	var rootID int64
	if err := readBin(r, &rootID); err != nil {
		return err
	}
	t.root = t.GetNode(int(rootID))
	if t.root == nil {
		return fmt.Errorf("%w: root id %d out of range", ErrIO, rootID)
	}
	t.orientFrom(t.root, nil)

	modelType, err := readString(r)
	if err != nil {
		return err
	}
	var paramLen int64
	if err := readBin(r, &paramLen); err != nil {
		return err
	}
	params := make([]byte, paramLen)
	if _, err := io.ReadFull(r, params); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	model, err := dnamodel.New(modelType)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := model.Read(bytes.NewReader(params)); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	t.model = model
	log.Debugf("loaded tree with %d nodes, %d sites, model %s", nNodes, csLen, modelType)
	return nil
}

// orientFrom rebuilds parent pointers by depth-first walk from the root.
func (t *Tree) orientFrom(n, parent *Node) {
	n.parent = parent
	for _, c := range n.neighbors {
		if c != parent {
			t.orientFrom(c, n)
		}
	}
}

func writeBin(w io.Writer, vals ...interface{}) error {
	for _, v := range vals {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
	}
	return nil
}

func readBin(r io.Reader, vals ...interface{}) error {
	for _, v := range vals {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := writeBin(w, uint32(len(s))); err != nil {
		return err
	}
	if _, err := io.WriteString(w, s); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := readBin(r, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrIO, err)
	}
	return string(buf), nil
}

func writeMatrix(w io.Writer, m *mat64.Dense) error {
	r, c := m.Dims()
	if err := writeBin(w, int64(r), int64(c)); err != nil {
		return err
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if err := writeBin(w, m.At(i, j)); err != nil {
				return err
			}
		}
	}
	return nil
}

func readMatrix(r io.Reader, wantRows, wantCols int) (*mat64.Dense, error) {
	var rows, cols int64
	if err := readBin(r, &rows, &cols); err != nil {
		return nil, err
	}
	if int(rows) != wantRows || int(cols) != wantCols {
		return nil, fmt.Errorf("%w: matrix shape %dx%d, want %dx%d", ErrIO, rows, cols, wantRows, wantCols)
	}
	m := mat64.NewDense(int(rows), int(cols), nil)
	for i := 0; i < int(rows); i++ {
		for j := 0; j < int(cols); j++ {
			var v float64
			if err := readBin(r, &v); err != nil {
				return nil, err
			}
			m.Set(i, j, v)
		}
	}
	return m, nil
}
