package proto

import (
	"fmt"

	"github.com/e57io/e57cv/e57err"
)

// Builder constructs a Tree incrementally, then assigns bytestream numbers
// by pre-order terminal enumeration on Build(). A Builder is single-use.
type Builder struct {
	nodes []Node
	err   error
}

// NewBuilder starts a new prototype tree rooted at an (unnamed) structure.
func NewBuilder() *Builder {
	b := &Builder{}
	b.nodes = append(b.nodes, Node{ID: 0, Parent: NoParent, Kind: KindStructure, BytestreamNumber: -1})
	return b
}

func (b *Builder) Root() NodeID { return 0 }

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Builder) addChild(parent NodeID, n Node) NodeID {
	if int(parent) >= len(b.nodes) || parent < 0 {
		b.fail(e57err.Internalf("builder: parent id %d out of range", parent))
		return -1
	}
	if b.nodes[parent].Kind != KindStructure && b.nodes[parent].Kind != KindVector {
		b.fail(e57err.Internalf("builder: parent %d is not a structural node", parent))
		return -1
	}
	// Homogeneous-vector enforcement, per the VectorNode.cpp rule: once a
	// vector has a child, every subsequent append must match
	// the first child's visible type signature exactly.
	if b.nodes[parent].Kind == KindVector && !b.nodes[parent].AllowHeteroChildren && len(b.nodes[parent].Children) >= 1 {
		first := b.nodes[b.nodes[parent].Children[0]]
		candidate := n
		candidate.ID = first.ID
		candidate.Parent = first.Parent
		candidate.Name = first.Name
		candidate.Children = nil
		firstCmp := first
		firstCmp.Children = nil
		if !sameVisibleType(firstCmp, candidate) {
			b.fail(e57err.BadApiArgument("child", n.Name, "homogeneous vector: child type does not match first child"))
			return -1
		}
	}
	id := NodeID(len(b.nodes))
	n.ID = id
	n.Parent = parent
	b.nodes = append(b.nodes, n)
	b.nodes[parent].Children = append(b.nodes[parent].Children, id)
	return id
}

func sameVisibleType(a, b Node) bool {
	return a.Kind == b.Kind && a.Min == b.Min && a.Max == b.Max &&
		a.Scale == b.Scale && a.Offset == b.Offset &&
		a.AllowHeteroChildren == b.AllowHeteroChildren &&
		len(a.Children) == len(b.Children)
}

// AddStructure appends a named structure (interior, named children) node.
func (b *Builder) AddStructure(parent NodeID, name string) NodeID {
	return b.addChild(parent, Node{Name: name, Kind: KindStructure, BytestreamNumber: -1})
}

// AddVector appends a named vector (interior, positional children) node.
func (b *Builder) AddVector(parent NodeID, name string, allowHeteroChildren bool) NodeID {
	return b.addChild(parent, Node{Name: name, Kind: KindVector, AllowHeteroChildren: allowHeteroChildren, BytestreamNumber: -1})
}

// AddSignedInteger appends a terminal signed-integer leaf.
func (b *Builder) AddSignedInteger(parent NodeID, name string, min, max int64) NodeID {
	return b.addChild(parent, Node{Name: name, Kind: KindSignedInteger, Min: min, Max: max})
}

// AddUnsignedInteger appends a terminal unsigned-integer leaf.
func (b *Builder) AddUnsignedInteger(parent NodeID, name string, min, max int64) NodeID {
	return b.addChild(parent, Node{Name: name, Kind: KindUnsignedInteger, Min: min, Max: max})
}

// AddBoolean appends a terminal boolean leaf (bit-packed width 1).
func (b *Builder) AddBoolean(parent NodeID, name string) NodeID {
	return b.addChild(parent, Node{Name: name, Kind: KindBoolean, Min: 0, Max: 1})
}

// AddScaledInteger appends a terminal scaled-integer leaf: wire-raw is a
// bit-packed integer over [rawMin, rawMax]; scale/offset convert to/from a
// float64 "scaled value" per §4.3/§4.4.
func (b *Builder) AddScaledInteger(parent NodeID, name string, rawMin, rawMax int64, scale, offset float64) NodeID {
	return b.addChild(parent, Node{Name: name, Kind: KindScaledInteger, Min: rawMin, Max: rawMax, Scale: scale, Offset: offset})
}

// AddFloat32 appends a terminal IEEE-754 single-precision leaf.
func (b *Builder) AddFloat32(parent NodeID, name string) NodeID {
	return b.addChild(parent, Node{Name: name, Kind: KindFloat32})
}

// AddFloat64 appends a terminal IEEE-754 double-precision leaf.
func (b *Builder) AddFloat64(parent NodeID, name string) NodeID {
	return b.addChild(parent, Node{Name: name, Kind: KindFloat64})
}

// AddString appends a terminal length-prefixed UTF-8 string leaf.
func (b *Builder) AddString(parent NodeID, name string) NodeID {
	return b.addChild(parent, Node{Name: name, Kind: KindString})
}

// Build finalizes the tree: validates integer ranges, assigns bytestream
// numbers by pre-order left-to-right terminal enumeration, and returns the
// immutable Tree.
func (b *Builder) Build() (*Tree, error) {
	if b.err != nil {
		return nil, b.err
	}
	for _, n := range b.nodes {
		switch n.Kind {
		case KindSignedInteger, KindUnsignedInteger, KindScaledInteger:
			if n.Max < n.Min {
				return nil, e57err.BadApiArgument("max", fmt.Sprintf("%d", n.Max), "max must be >= min")
			}
			if n.Kind == KindUnsignedInteger && n.Min < 0 {
				return nil, e57err.BadApiArgument("min", fmt.Sprintf("%d", n.Min), "unsigned integer min must be >= 0")
			}
		}
	}

	t := &Tree{nodes: b.nodes, root: 0}

	var bsn int
	var walk func(id NodeID)
	walk = func(id NodeID) {
		n := &t.nodes[id]
		if n.Kind.IsTerminal() {
			n.BytestreamNumber = bsn
			t.byBSN = append(t.byBSN, id)
			bsn++
			return
		}
		n.BytestreamNumber = -1
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(t.root)
	t.terminalCount = bsn
	if t.terminalCount == 0 {
		return nil, e57err.BadApiArgument("prototype", "", "prototype has no terminal leaves")
	}
	return t, nil
}
