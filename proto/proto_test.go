package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_PreOrderBytestreamNumbering(t *testing.T) {
	b := NewBuilder()
	root := b.Root()
	s := b.AddStructure(root, "pose")
	b.AddFloat64(s, "x")
	b.AddFloat64(s, "y")
	b.AddUnsignedInteger(root, "intensity", 0, 255)
	tree, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, 3, tree.TerminalCount())

	xID, err := tree.FindByPath("/pose/x")
	require.NoError(t, err)
	yID, err := tree.FindByPath("/pose/y")
	require.NoError(t, err)
	intensityID, err := tree.FindByPath("/intensity")
	require.NoError(t, err)

	assert.Equal(t, 0, tree.Node(xID).BytestreamNumber)
	assert.Equal(t, 1, tree.Node(yID).BytestreamNumber)
	assert.Equal(t, 2, tree.Node(intensityID).BytestreamNumber)

	node, ok := tree.ByBytestreamNumber(2)
	require.True(t, ok)
	assert.Equal(t, "intensity", node.Name)

	_, ok = tree.ByBytestreamNumber(99)
	assert.False(t, ok)
}

func TestFindByPath_RootRelativeAndAbsoluteAgree(t *testing.T) {
	b := NewBuilder()
	b.AddFloat32(b.Root(), "v")
	tree, err := b.Build()
	require.NoError(t, err)

	absID, err := tree.FindByPath("/v")
	require.NoError(t, err)
	relID, err := tree.FindByPath("v")
	require.NoError(t, err)
	assert.Equal(t, absID, relID)
}

func TestFindByPath_UndefinedPathRejected(t *testing.T) {
	b := NewBuilder()
	b.AddFloat32(b.Root(), "v")
	tree, err := b.Build()
	require.NoError(t, err)

	_, err = tree.FindByPath("/nonexistent")
	assert.Error(t, err)
}

func TestBuild_RejectsMaxLessThanMin(t *testing.T) {
	b := NewBuilder()
	b.AddSignedInteger(b.Root(), "v", 10, 5)
	_, err := b.Build()
	assert.Error(t, err)
}

func TestBuild_RejectsNegativeMinForUnsigned(t *testing.T) {
	b := NewBuilder()
	b.AddUnsignedInteger(b.Root(), "v", -1, 5)
	_, err := b.Build()
	assert.Error(t, err)
}

func TestBuild_RejectsEmptyPrototype(t *testing.T) {
	b := NewBuilder()
	_, err := b.Build()
	assert.Error(t, err)
}

func TestVector_HomogeneousChildrenEnforced(t *testing.T) {
	b := NewBuilder()
	v := b.AddVector(b.Root(), "points", false)
	b.AddFloat64(v, "x")
	b.AddUnsignedInteger(v, "x", 0, 255) // same name, different kind: must fail
	_, err := b.Build()
	assert.Error(t, err)
}

func TestVector_HeterogeneousChildrenAllowedWhenFlagged(t *testing.T) {
	b := NewBuilder()
	v := b.AddVector(b.Root(), "points", true)
	b.AddFloat64(v, "x")
	b.AddUnsignedInteger(v, "x", 0, 255)
	_, err := b.Build()
	assert.NoError(t, err)
}

func TestTerminalPosition_RejectsInteriorNode(t *testing.T) {
	b := NewBuilder()
	s := b.AddStructure(b.Root(), "pose")
	b.AddFloat64(s, "x")
	tree, err := b.Build()
	require.NoError(t, err)

	_, err = tree.TerminalPosition(s)
	assert.Error(t, err)
}

func TestCheckBuffers_RejectsDuplicateBinding(t *testing.T) {
	b := NewBuilder()
	b.AddFloat64(b.Root(), "x")
	b.AddFloat64(b.Root(), "y")
	tree, err := b.Build()
	require.NoError(t, err)

	err = CheckBuffers(tree, []BufferSpec{{Path: "/x"}, {Path: "/x"}}, true)
	assert.Error(t, err)
}

func TestCheckBuffers_RejectsMissingTerminalWhenNotAllowed(t *testing.T) {
	b := NewBuilder()
	b.AddFloat64(b.Root(), "x")
	b.AddFloat64(b.Root(), "y")
	tree, err := b.Build()
	require.NoError(t, err)

	err = CheckBuffers(tree, []BufferSpec{{Path: "/x"}}, false)
	assert.Error(t, err)

	err = CheckBuffers(tree, []BufferSpec{{Path: "/x"}}, true)
	assert.NoError(t, err)
}

func TestCheckBuffers_RejectsEmptyList(t *testing.T) {
	b := NewBuilder()
	b.AddFloat64(b.Root(), "x")
	tree, err := b.Build()
	require.NoError(t, err)

	err = CheckBuffers(tree, nil, true)
	assert.Error(t, err)
}

func TestKind_IsTerminal(t *testing.T) {
	assert.True(t, KindFloat64.IsTerminal())
	assert.True(t, KindString.IsTerminal())
	assert.False(t, KindStructure.IsTerminal())
	assert.False(t, KindVector.IsTerminal())
}
