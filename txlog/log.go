// Package txlog builds, optimizes and replays transaction logs of a state tree.
//
// A Log maps each touched node to the ordered records produced for it during one
// transaction. Builder harvests a raw log from the tree through the Visitor contract,
// Optimize reduces it to the smallest equivalent log and Mirror replays logs on a client
// side replica.
package txlog

import (
	"fmt"
	"strings"

	"github.com/cosmos/statetree/change"
)

// Log is an ordered mapping from node to its change records. Node order is the order in which
// nodes were added; record order is preserved per node.
type Log struct {
	order   []change.NodeID
	changes map[change.NodeID][]change.Change
}

func NewLog() *Log {
	return &Log{changes: make(map[change.NodeID][]change.Change)}
}

// Append adds the records of a node that is not in the log yet.
func (l *Log) Append(id change.NodeID, changes []change.Change) error {
	if _, ok := l.changes[id]; ok {
		return fmt.Errorf("%w: node %d appears twice in the log", ErrInternal, id)
	}
	l.order = append(l.order, id)
	l.changes[id] = changes
	return nil
}

// Nodes returns the node keys in log order.
func (l *Log) Nodes() []change.NodeID {
	nodes := make([]change.NodeID, len(l.order))
	copy(nodes, l.order)
	return nodes
}

// Changes returns the records of a node. The slice must not be modified.
func (l *Log) Changes(id change.NodeID) []change.Change {
	return l.changes[id]
}

func (l *Log) Contains(id change.NodeID) bool {
	_, ok := l.changes[id]
	return ok
}

// Len is the number of nodes in the log.
func (l *Log) Len() int {
	return len(l.order)
}

// Count is the number of records over all nodes.
func (l *Log) Count() int {
	n := 0
	for _, id := range l.order {
		n += len(l.changes[id])
	}
	return n
}

// Flatten returns every record in log order.
func (l *Log) Flatten() []change.Change {
	all := make([]change.Change, 0, l.Count())
	for _, id := range l.order {
		all = append(all, l.changes[id]...)
	}
	return all
}

// Filter returns a log holding only the nodes accepted by keep.
func (l *Log) Filter(keep func(change.NodeID) bool) *Log {
	out := NewLog()
	for _, id := range l.order {
		if keep(id) {
			out.order = append(out.order, id)
			out.changes[id] = l.changes[id]
		}
	}
	return out
}

// Clone copies the log structure. Records are values and are shared.
func (l *Log) Clone() *Log {
	out := NewLog()
	for _, id := range l.order {
		cs := make([]change.Change, len(l.changes[id]))
		copy(cs, l.changes[id])
		out.order = append(out.order, id)
		out.changes[id] = cs
	}
	return out
}

func (l *Log) String() string {
	var sb strings.Builder
	for _, id := range l.order {
		fmt.Fprintf(&sb, "#%d:", id)
		for _, c := range l.changes[id] {
			sb.WriteString(" ")
			sb.WriteString(c.String())
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// NodeSet is a set of nodes, used for the nodes reachable from the root at commit time.
type NodeSet map[change.NodeID]struct{}

func (s NodeSet) Add(id change.NodeID) {
	s[id] = struct{}{}
}

func (s NodeSet) Contains(id change.NodeID) bool {
	_, ok := s[id]
	return ok
}
