package statetree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cosmos/statetree/change"
)

func TestBasicSlots(t *testing.T) {
	tree := NewTree()
	node := tree.NewNode()
	require.NoError(t, node.Put("b", 2))
	require.NoError(t, node.Put("a", "x"))

	v, ok := node.Get("a")
	require.True(t, ok)
	require.Equal(t, "x", v)
	_, ok = node.Get("missing")
	require.False(t, ok)
	require.Equal(t, []string{"a", "b"}, node.Keys())

	old, err := node.Remove("b")
	require.NoError(t, err)
	require.Equal(t, 2, old)
	require.Equal(t, []string{"a"}, node.Keys())

	require.NoError(t, node.InsertMany("L", 0, 1, 2, 3))
	require.NoError(t, node.Insert("L", 1, 9))
	require.Equal(t, []any{1, 9, 2, 3}, node.List("L"))
	require.Equal(t, 4, node.Len("L"))
	require.Nil(t, node.List("other"))

	removed, err := node.RemoveAt("L", 3)
	require.NoError(t, err)
	require.Equal(t, 3, removed)
	found, err := node.RemoveValue("L", 42)
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, node.Clear("L"))
	require.Equal(t, 0, node.Len("L"))
	require.Equal(t, []string{"L"}, node.ListKeys())
}

func TestPendingRecordsInCallOrder(t *testing.T) {
	tree := NewTree()
	node := tree.NewNode()
	child := tree.NewNode()
	require.NoError(t, node.Put("k", 1))
	require.NoError(t, node.Append("L", child))
	_, err := node.Remove("k")
	require.NoError(t, err)

	require.Equal(t, []change.Change{
		change.Put{Key: "k", Value: 1},
		change.ListInsert{Index: 0, Key: "L", Value: child},
		change.Remove{Key: "k", OldValue: 1},
	}, node.PendingChanges())
	require.Equal(t, []change.Change{
		change.IdChange{Old: 0, New: child.ClientID()},
		change.ParentChange{OldParent: 0, NewParent: node.ID()},
	}, child.PendingChanges())
	require.Equal(t, 2, tree.Pending())
}

func TestClientIDs(t *testing.T) {
	tree := NewTree()
	require.Equal(t, 1, tree.Root().ClientID())

	a, b := tree.NewNode(), tree.NewNode()
	require.Zero(t, a.ClientID())
	require.NoError(t, tree.Root().Put("a", a))
	require.Equal(t, 2, a.ClientID())

	require.NoError(t, b.AssignClientID(10))
	require.ErrorIs(t, b.AssignClientID(11), ErrIDAssigned)
	require.NoError(t, a.Put("b", b))
	require.Equal(t, 10, b.ClientID())
	require.Equal(t, []change.Change{
		change.IdChange{Old: 0, New: 10},
		change.ParentChange{OldParent: 0, NewParent: a.ID()},
	}, b.PendingChanges())

	c := tree.NewNode()
	require.NoError(t, a.Append("L", c))
	require.Equal(t, 11, c.ClientID())
	require.Equal(t, "#4", c.String())
	require.Equal(t, "#1", tree.Root().String())

	d, e := tree.NewNode(), tree.NewNode()
	require.NoError(t, d.AssignClientID(7))
	require.ErrorIs(t, e.AssignClientID(7), ErrIDTaken)
	require.ErrorIs(t, e.AssignClientID(11), ErrIDTaken)
	require.ErrorIs(t, e.AssignClientID(1), ErrIDTaken)
	require.ErrorIs(t, e.AssignClientID(0), ErrInvalidID)
	require.ErrorIs(t, e.AssignClientID(-3), ErrInvalidID)
	require.Zero(t, e.ClientID())
	require.Empty(t, e.PendingChanges())

	require.NoError(t, c.Put("e", e))
	require.Equal(t, 12, e.ClientID())
}

func TestParentLinks(t *testing.T) {
	tree := NewTree()
	a, b := tree.NewNode(), tree.NewNode()
	require.NoError(t, tree.Root().Put("a", a))
	require.NoError(t, a.Append("L", b))

	p, ok := b.Parent()
	require.True(t, ok)
	require.Same(t, a, p)
	require.True(t, b.IsAttached())

	_, err := a.RemoveAt("L", 0)
	require.NoError(t, err)
	_, ok = b.Parent()
	require.False(t, ok)
	require.False(t, b.IsAttached())

	require.NoError(t, a.Put("x", b))
	old, err := a.Remove("x")
	require.NoError(t, err)
	require.Same(t, b, old)
	require.False(t, b.IsAttached())

	require.NoError(t, a.Put("x", b))
	require.NoError(t, a.Put("x", "plain"))
	_, ok = b.Parent()
	require.False(t, ok)
}

func TestMutationErrors(t *testing.T) {
	tree := NewTree()
	root := tree.Root()
	a, b := tree.NewNode(), tree.NewNode()
	require.NoError(t, root.Put("a", a))
	require.NoError(t, a.Put("b", b))
	before := len(a.PendingChanges())

	t.Run("cycle", func(t *testing.T) {
		require.ErrorIs(t, b.Put("up", a), ErrAlreadyAttached)
		loose := tree.NewNode()
		inner := tree.NewNode()
		require.NoError(t, loose.Put("inner", inner))
		require.ErrorIs(t, inner.Append("L", loose), ErrCycle)
		require.ErrorIs(t, loose.Put("self", loose), ErrCycle)
	})
	t.Run("already attached", func(t *testing.T) {
		require.ErrorIs(t, root.Put("b", b), ErrAlreadyAttached)
		require.ErrorIs(t, root.Insert("L", 0, b), ErrAlreadyAttached)
		c := tree.NewNode()
		require.ErrorIs(t, root.InsertMany("M", 0, c, c), ErrAlreadyAttached)
		require.Equal(t, 0, root.Len("M"))
	})
	t.Run("root", func(t *testing.T) {
		require.ErrorIs(t, a.Put("root", root), ErrRootAttach)
	})
	t.Run("foreign", func(t *testing.T) {
		other := NewTree().NewNode()
		require.ErrorIs(t, a.Put("other", other), ErrForeignNode)
		var nilNode *Node
		require.ErrorIs(t, a.Put("nil", nilNode), ErrForeignNode)
	})
	t.Run("slot kind", func(t *testing.T) {
		require.ErrorIs(t, a.Append("b", "x"), ErrSlotKind)
		require.NoError(t, a.Append("L", "x"))
		require.ErrorIs(t, a.Put("L", "x"), ErrSlotKind)
		_, err := a.Remove("L")
		require.ErrorIs(t, err, ErrSlotKind)

		require.NoError(t, a.Put("tmp", 1))
		_, err = a.Remove("tmp")
		require.NoError(t, err)
		require.ErrorIs(t, a.Append("tmp", 1), ErrSlotKind)
	})
	t.Run("bounds", func(t *testing.T) {
		require.ErrorIs(t, a.Insert("L", 5, "x"), ErrIndexOutOfRange)
		require.ErrorIs(t, a.Insert("L", -1, "x"), ErrIndexOutOfRange)
		_, err := a.RemoveAt("L", 1)
		require.ErrorIs(t, err, ErrIndexOutOfRange)
		_, err = a.Set("L", 1, "y")
		require.ErrorIs(t, err, ErrIndexOutOfRange)
		_, err = a.RemoveAt("empty", 0)
		require.ErrorIs(t, err, ErrIndexOutOfRange)
	})
	t.Run("nil", func(t *testing.T) {
		require.ErrorIs(t, a.Put("n", nil), ErrNilValue)
		require.ErrorIs(t, a.Append("L", nil), ErrNilValue)
	})
	t.Run("missing key", func(t *testing.T) {
		_, err := a.Remove("nope")
		require.ErrorIs(t, err, ErrKeyNotFound)
	})

	// only the successful Append("L"), Put("tmp") and Remove("tmp") left records
	require.Len(t, a.PendingChanges(), before+3)
}

func TestRenderDotGraph(t *testing.T) {
	tree := NewTree()
	a := tree.NewNode()
	require.NoError(t, tree.Root().Put("a", a))
	require.NoError(t, a.Put("title", "hello"))
	require.NoError(t, a.InsertMany("items", 0, "x", tree.NewNode()))

	out := RenderDotGraph(tree.Root())
	require.Contains(t, out, "digraph")
	require.Contains(t, out, "title=hello")
	require.Contains(t, out, "items=[x]")
	require.Contains(t, out, "items[1]")
	t.Log(out)
}
