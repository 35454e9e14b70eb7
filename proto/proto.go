// Package proto models the prototype tree: the immutable, in-memory
// description of one compressed-vector record's type. It provides
// terminal-position (bytestream number) assignment and path resolution.
package proto

import (
	"fmt"
	"strings"

	"github.com/e57io/e57cv/e57err"
)

// Kind is the type tag of one prototype node.
type Kind int

const (
	KindInvalid Kind = iota
	KindSignedInteger
	KindUnsignedInteger
	KindScaledInteger
	KindFloat32
	KindFloat64
	KindString
	KindBoolean
	KindStructure
	KindVector
)

func (k Kind) String() string {
	switch k {
	case KindSignedInteger:
		return "SignedInteger"
	case KindUnsignedInteger:
		return "UnsignedInteger"
	case KindScaledInteger:
		return "ScaledInteger"
	case KindFloat32:
		return "Float32"
	case KindFloat64:
		return "Float64"
	case KindString:
		return "String"
	case KindBoolean:
		return "Boolean"
	case KindStructure:
		return "Structure"
	case KindVector:
		return "Vector"
	default:
		return "Invalid"
	}
}

// IsTerminal reports whether values of this kind occupy a bytestream
// (leaf kinds), as opposed to structural interior kinds.
func (k Kind) IsTerminal() bool {
	switch k {
	case KindSignedInteger, KindUnsignedInteger, KindScaledInteger, KindFloat32, KindFloat64, KindString, KindBoolean:
		return true
	default:
		return false
	}
}

// NodeID is a stable index into a Tree's node arena. Parent references are
// ids, not owning pointers: the tree owns all nodes, children and parents
// are looked up, never retained as separate allocations.
type NodeID int

const NoParent NodeID = -1

// Node is one element of the prototype tree. Only the fields relevant to
// its Kind are meaningful; e.g. Min/Max is meaningless for KindString.
type Node struct {
	ID       NodeID
	Parent   NodeID
	Name     string
	Kind     Kind
	Children []NodeID

	Min, Max int64 // integer / scaled-integer raw range, closed interval
	Scale    float64
	Offset   float64
	Float64  bool // for KindFloat32/KindFloat64 this is implied by Kind itself; kept for symmetry

	AllowHeteroChildren bool // KindVector only

	// BytestreamNumber is assigned during Build() by pre-order, left-to-right
	// terminal enumeration. -1 for interior nodes.
	BytestreamNumber int
}

// Tree is the immutable prototype of one compressed-vector record.
type Tree struct {
	nodes         []Node
	root          NodeID
	terminalCount int
	byBSN         []NodeID // bytestream number -> node id
}

// Root returns the id of the top-level structure node.
func (t *Tree) Root() NodeID { return t.root }

// Node returns the node for id. Panics on an out-of-range id, which would
// indicate a programming error (ids are only ever produced by this package).
func (t *Tree) Node(id NodeID) *Node {
	return &t.nodes[id]
}

// TerminalCount is K, the number of bytestreams.
func (t *Tree) TerminalCount() int { return t.terminalCount }

// ByBytestreamNumber resolves a bytestream number back to its node.
func (t *Tree) ByBytestreamNumber(bsn int) (*Node, bool) {
	if bsn < 0 || bsn >= len(t.byBSN) {
		return nil, false
	}
	return &t.nodes[t.byBSN[bsn]], true
}

// Path returns the root-relative "/"-joined path to id.
func (t *Tree) Path(id NodeID) string {
	var parts []string
	for cur := id; cur != t.root; cur = t.nodes[cur].Parent {
		parts = append([]string{t.nodes[cur].Name}, parts...)
	}
	return "/" + strings.Join(parts, "/")
}

// FindByPath resolves an absolute ("/a/b") or root-relative ("a/b") path to
// a node id, interior nodes included (the empty path names the root).
// Returns a PathUndefined error if no node exists at that path.
func (t *Tree) FindByPath(path string) (NodeID, error) {
	clean := strings.TrimPrefix(path, "/")
	if clean == "" {
		return t.root, nil
	}
	cur := t.root
	for _, segment := range strings.Split(clean, "/") {
		found := false
		for _, childID := range t.nodes[cur].Children {
			if t.nodes[childID].Name == segment {
				cur = childID
				found = true
				break
			}
		}
		if !found {
			return 0, e57err.PathUndefined(path)
		}
	}
	return cur, nil
}

// TerminalPosition returns the bytestream number of a terminal node. It is a
// pure function of tree structure, computed once at Build() and stored on
// the node; this accessor just validates the node is in fact terminal.
func (t *Tree) TerminalPosition(id NodeID) (int, error) {
	n := &t.nodes[id]
	if !n.Kind.IsTerminal() {
		return 0, e57err.BadPathName(t.Path(id))
	}
	return n.BytestreamNumber, nil
}

// BufferSpec is the minimal shape checkBuffers needs from an SDB: just
// enough to validate path resolution and duplicate-path detection without
// this package importing the sdb package (which itself depends on proto for
// bytestream binding) — avoids an import cycle.
type BufferSpec struct {
	Path string
}

// CheckBuffers verifies that each buffer's path resolves to a distinct
// terminal, and, when allowMissing is false, that the set of paths equals
// exactly the set of terminals in the tree.
func CheckBuffers(t *Tree, specs []BufferSpec, allowMissing bool) error {
	if len(specs) == 0 {
		return e57err.BadApiArgument("buffers", "", "buffer list must not be empty")
	}
	seen := make(map[NodeID]string, len(specs))
	for _, s := range specs {
		id, err := t.FindByPath(s.Path)
		if err != nil {
			return err
		}
		if !t.nodes[id].Kind.IsTerminal() {
			return e57err.BadPathName(s.Path)
		}
		if prior, dup := seen[id]; dup {
			return e57err.BadApiArgument("path", s.Path, fmt.Sprintf("duplicate binding to the same terminal as %q", prior))
		}
		seen[id] = s.Path
	}
	if !allowMissing && len(seen) != t.terminalCount {
		return e57err.BadApiArgument("buffers", "", fmt.Sprintf("expected bindings for all %d terminals, got %d", t.terminalCount, len(seen)))
	}
	return nil
}
