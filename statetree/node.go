package statetree

import (
	"slices"
	"strconv"

	"github.com/tidwall/btree"

	"github.com/cosmos/statetree/change"
	"github.com/cosmos/statetree/txlog"
)

// Node is a state tree node with scalar slots and list slots. A key names either a scalar slot
// or a list slot. Slots iterate in key order.
type Node struct {
	id       change.NodeID
	tree     *Tree
	clientID int
	parent   *Node

	scalars btree.Map[string, any]
	lists   btree.Map[string, *listSlot]

	// pending holds the records of the running transaction in call order and base the
	// committed state of each scalar slot touched by them.
	pending []change.Change
	base    map[string]txlog.Slot
	dirty   bool

	// known is set while the client holds the node, i.e. it was reachable at the last commit.
	known bool
}

type listSlot struct {
	values []any
}

// ID is the node's stable arena key.
func (n *Node) ID() change.NodeID {
	return n.id
}

// Ref makes nodes usable as child references inside change records.
func (n *Node) Ref() change.NodeID {
	if n == nil {
		return 0
	}
	return n.id
}

// ClientID is the id the client addresses the node with, 0 until assigned.
func (n *Node) ClientID() int {
	return n.clientID
}

func (n *Node) Tree() *Tree {
	return n.tree
}

// Parent returns the node holding this one in a slot.
func (n *Node) Parent() (*Node, bool) {
	return n.parent, n.parent != nil
}

// IsAttached reports whether the node is currently reachable from the root.
func (n *Node) IsAttached() bool {
	for cur := n; ; {
		if cur == n.tree.root {
			return true
		}
		p, ok := cur.Parent()
		if !ok {
			return false
		}
		cur = p
	}
}

// Get returns the value of a scalar slot.
func (n *Node) Get(key string) (any, bool) {
	return n.scalars.Get(key)
}

// Keys returns the keys of the present scalar slots in order.
func (n *Node) Keys() []string {
	return n.scalars.Keys()
}

// List returns a copy of a list slot.
func (n *Node) List(key string) []any {
	l, ok := n.lists.Get(key)
	if !ok {
		return nil
	}
	return slices.Clone(l.values)
}

// Len returns the length of a list slot.
func (n *Node) Len(key string) int {
	l, ok := n.lists.Get(key)
	if !ok {
		return 0
	}
	return len(l.values)
}

// ListKeys returns the keys of the list slots in order, including emptied ones.
func (n *Node) ListKeys() []string {
	return n.lists.Keys()
}

// PendingChanges returns a copy of the records not committed yet.
func (n *Node) PendingChanges() []change.Change {
	return slices.Clone(n.pending)
}

func (n *Node) String() string {
	return "#" + strconv.FormatUint(uint64(n.id), 10)
}

func (n *Node) record(c change.Change) {
	n.tree.markDirty(n)
	n.pending = append(n.pending, c)
}

// captureBase remembers the committed state of a scalar slot before its first change in the
// running transaction.
func (n *Node) captureBase(key string) {
	if n.base == nil {
		n.base = make(map[string]txlog.Slot)
	}
	if _, ok := n.base[key]; ok {
		return
	}
	v, present := n.scalars.Get(key)
	n.base[key] = txlog.Slot{Value: v, Present: present}
}

// children returns the child nodes in slot order: scalar slots first, then list slots.
func (n *Node) children() []*Node {
	var out []*Node
	n.scalars.Scan(func(_ string, v any) bool {
		if child, ok := v.(*Node); ok {
			out = append(out, child)
		}
		return true
	})
	n.lists.Scan(func(_ string, l *listSlot) bool {
		for _, v := range l.values {
			if child, ok := v.(*Node); ok {
				out = append(out, child)
			}
		}
		return true
	})
	return out
}
