package statetree

import (
	"github.com/cosmos/statetree/change"
	"github.com/cosmos/statetree/txlog"
)

// Snapshot copies the content of every node reachable from the root, with child nodes
// replaced by their change.NodeID and empty lists left out. It has the shape of
// txlog.Mirror.Snapshot, so a replica can be compared to the tree directly.
func (t *Tree) Snapshot() map[change.NodeID]txlog.NodeState {
	out := make(map[change.NodeID]txlog.NodeState)
	_, order, err := t.reachable()
	if err != nil {
		log.Error().Err(err).Msg("snapshot of inconsistent tree")
		return out
	}
	for _, n := range order {
		state := txlog.NodeState{
			Scalars: make(map[string]any),
			Lists:   make(map[string][]any),
		}
		n.scalars.Scan(func(key string, v any) bool {
			state.Scalars[key] = snapshotValue(v)
			return true
		})
		n.lists.Scan(func(key string, l *listSlot) bool {
			if len(l.values) == 0 {
				return true
			}
			values := make([]any, len(l.values))
			for i, v := range l.values {
				values[i] = snapshotValue(v)
			}
			state.Lists[key] = values
			return true
		})
		out[n.id] = state
	}
	return out
}

func snapshotValue(v any) any {
	if id, ok := change.RefID(v); ok {
		return id
	}
	return v
}
