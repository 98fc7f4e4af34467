package txlog

import (
	"fmt"
	"slices"

	"github.com/cosmos/statetree/change"
)

// NodeState is the content of one node as seen by a client. Child references are stored as
// change.NodeID values; empty lists are omitted.
type NodeState struct {
	Scalars map[string]any
	Lists   map[string][]any
}

func newNodeState() *NodeState {
	return &NodeState{
		Scalars: make(map[string]any),
		Lists:   make(map[string][]any),
	}
}

// Mirror is a client side replica built only from transaction logs.
type Mirror struct {
	root      change.NodeID
	nodes     map[change.NodeID]*NodeState
	clientIDs map[change.NodeID]int
}

func NewMirror(root change.NodeID) *Mirror {
	return &Mirror{
		root:      root,
		nodes:     make(map[change.NodeID]*NodeState),
		clientIDs: make(map[change.NodeID]int),
	}
}

// Apply replays every record of the log in order. Removing an absent scalar is a no-op, a
// list index out of range fails with ErrReplay and leaves the replica partially updated.
func (m *Mirror) Apply(l *Log) error {
	for _, id := range l.order {
		state, ok := m.nodes[id]
		if !ok {
			state = newNodeState()
			m.nodes[id] = state
		}
		for _, c := range l.changes[id] {
			if err := m.apply(id, state, c); err != nil {
				return fmt.Errorf("node %d, %s: %w", id, c, err)
			}
		}
	}
	return nil
}

func (m *Mirror) apply(id change.NodeID, state *NodeState, c change.Change) error {
	switch c := c.(type) {
	case change.IdChange:
		m.clientIDs[id] = c.New
	case change.ParentChange:
	case change.Put:
		state.Scalars[c.Key] = normalize(c.Value)
	case change.Remove:
		delete(state.Scalars, c.Key)
	case change.ListInsert:
		list := state.Lists[c.Key]
		if c.Index < 0 || c.Index > len(list) {
			return fmt.Errorf("%w: insert at %d, length %d", ErrReplay, c.Index, len(list))
		}
		state.Lists[c.Key] = slices.Insert(list, c.Index, normalize(c.Value))
	case change.ListInsertMany:
		list := state.Lists[c.Key]
		if c.Index < 0 || c.Index > len(list) {
			return fmt.Errorf("%w: insert at %d, length %d", ErrReplay, c.Index, len(list))
		}
		values := make([]any, len(c.Values))
		for i, v := range c.Values {
			values[i] = normalize(v)
		}
		state.Lists[c.Key] = slices.Insert(list, c.Index, values...)
	case change.ListRemove:
		list := state.Lists[c.Key]
		if c.Index < 0 || c.Index >= len(list) {
			return fmt.Errorf("%w: remove at %d, length %d", ErrReplay, c.Index, len(list))
		}
		state.Lists[c.Key] = slices.Delete(list, c.Index, c.Index+1)
	case change.ListReplace:
		list := state.Lists[c.Key]
		if c.Index < 0 || c.Index >= len(list) {
			return fmt.Errorf("%w: replace at %d, length %d", ErrReplay, c.Index, len(list))
		}
		list[c.Index] = normalize(c.NewValue)
	default:
		return fmt.Errorf("%w: unknown change %T", ErrReplay, c)
	}
	return nil
}

// Collect drops every node that is no longer reachable from the root, the way a client
// discards detached nodes after a commit. It returns the number of dropped nodes.
func (m *Mirror) Collect() int {
	reachable := m.reachable()
	dropped := 0
	for id := range m.nodes {
		if !reachable.Contains(id) {
			delete(m.nodes, id)
			delete(m.clientIDs, id)
			dropped++
		}
	}
	return dropped
}

// ClientID returns the client id last assigned to a node.
func (m *Mirror) ClientID(id change.NodeID) (int, bool) {
	cid, ok := m.clientIDs[id]
	return cid, ok
}

// Snapshot copies the state of every node reachable from the root.
func (m *Mirror) Snapshot() map[change.NodeID]NodeState {
	out := make(map[change.NodeID]NodeState)
	for id := range m.reachable() {
		snap := NodeState{
			Scalars: make(map[string]any),
			Lists:   make(map[string][]any),
		}
		if state, ok := m.nodes[id]; ok {
			for k, v := range state.Scalars {
				snap.Scalars[k] = v
			}
			for k, l := range state.Lists {
				if len(l) > 0 {
					snap.Lists[k] = slices.Clone(l)
				}
			}
		}
		out[id] = snap
	}
	return out
}

func (m *Mirror) reachable() NodeSet {
	seen := make(NodeSet)
	stack := []change.NodeID{m.root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen.Contains(id) {
			continue
		}
		seen.Add(id)
		state, ok := m.nodes[id]
		if !ok {
			continue
		}
		for _, v := range state.Scalars {
			if child, ok := v.(change.NodeID); ok {
				stack = append(stack, child)
			}
		}
		for _, l := range state.Lists {
			for _, v := range l {
				if child, ok := v.(change.NodeID); ok {
					stack = append(stack, child)
				}
			}
		}
	}
	return seen
}

func normalize(v any) any {
	if id, ok := change.RefID(v); ok {
		return id
	}
	return v
}
