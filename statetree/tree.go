// Package statetree keeps a server side tree of UI state nodes and turns every transaction of
// mutations into an optimized change log for the client.
//
// A Tree owns an arena of nodes and the root. Nodes hold scalar slots and ordered list slots;
// node values placed in a slot become children. Every mutation appends a change record to the
// node it touched, and Commit harvests those records, optimizes them and establishes the
// committed state as the baseline of the next transaction.
//
// A Tree has a single writer. None of its methods are safe for concurrent use.
package statetree

import (
	"github.com/google/uuid"

	"github.com/cosmos/statetree/change"
	"github.com/cosmos/statetree/logz"
)

var log = logz.Logger.With().Str("module", "statetree").Logger()

const rootClientID = 1

type Tree struct {
	id   uuid.UUID
	root *Node

	// nodes holds the root, every node reachable at the last commit and every node touched
	// since. Detached nodes leave the arena at commit and re-enter it when touched again.
	nodes map[change.NodeID]*Node

	// dirty lists the nodes with pending records in first touch order.
	dirty []change.NodeID

	// clientIDs holds every client id handed out. Ids stay taken for the lifetime of the tree,
	// since a detached node keeps its id and can be reattached.
	clientIDs map[int]*Node

	lastNodeID   change.NodeID
	lastClientID int
	version      int64
}

func NewTree() *Tree {
	t := &Tree{
		id:           uuid.New(),
		nodes:        make(map[change.NodeID]*Node),
		clientIDs:    make(map[int]*Node),
		lastClientID: rootClientID,
	}
	t.root = t.newNode()
	t.root.clientID = rootClientID
	t.clientIDs[rootClientID] = t.root
	t.root.known = true
	return t
}

// ID identifies the tree, e.g. in logs of a session owning several trees over time.
func (t *Tree) ID() uuid.UUID {
	return t.id
}

// Root returns the root node. The client knows the root from the start.
func (t *Tree) Root() *Node {
	return t.root
}

// NewNode creates a detached node. It becomes visible to the client once it is reachable from
// the root at a commit.
func (t *Tree) NewNode() *Node {
	return t.newNode()
}

func (t *Tree) newNode() *Node {
	t.lastNodeID++
	n := &Node{id: t.lastNodeID, tree: t}
	t.nodes[n.id] = n
	return n
}

// Node looks a node up in the arena.
func (t *Tree) Node(id change.NodeID) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Version is the number of successful commits.
func (t *Tree) Version() int64 {
	return t.version
}

// Pending is the number of nodes with uncommitted records.
func (t *Tree) Pending() int {
	return len(t.dirty)
}

func (t *Tree) nextClientID() int {
	t.lastClientID++
	return t.lastClientID
}

func (t *Tree) markDirty(n *Node) {
	if n.dirty {
		return
	}
	n.dirty = true
	t.nodes[n.id] = n
	t.dirty = append(t.dirty, n.id)
}
