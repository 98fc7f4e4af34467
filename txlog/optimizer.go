package txlog

import (
	"fmt"

	"github.com/cosmos/statetree/change"
)

type optimizerOptions struct {
	baseline Baseline
}

type Option func(*optimizerOptions)

// WithBaseline gives the optimizer the scalar slot states captured when the transaction
// began. Without it the baseline of a slot is inferred from its records: a slot whose first
// record is a Remove was present with the removed value, any other slot is of unknown state
// and a net removal of it is kept as a Remove.
func WithBaseline(baseline Baseline) Option {
	return func(o *optimizerOptions) {
		o.baseline = baseline
	}
}

// Optimize reduces a raw transaction log to the smallest log with the same net effect.
//
// Nodes missing from reachable are dropped together with all their records. For the nodes
// left, scalar slots fold into at most one Put or Remove, list slots are replayed and
// re-emitted as removes, replaces and coalesced inserts, and parent and id changes are kept
// as they are. A nil reachable set keeps every node. The raw log is not modified; on error
// nothing is returned.
func Optimize(raw *Log, reachable NodeSet, opts ...Option) (*Log, error) {
	var o optimizerOptions
	for _, opt := range opts {
		opt(&o)
	}

	out := NewLog()
	for _, id := range raw.order {
		if reachable != nil && !reachable.Contains(id) {
			continue
		}
		changes, err := optimizeNode(id, raw.changes[id], o.baseline)
		if err != nil {
			return nil, fmt.Errorf("optimizing node %d: %w", id, err)
		}
		if len(changes) == 0 {
			continue
		}
		if err := out.Append(id, changes); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// slotGroup gathers the records of one slot of a node.
type slotGroup struct {
	key     string
	list    bool
	records []change.Change
}

// optimizeNode emits the reduced records of every slot at the position of the slot's first
// raw record, and parent and id changes where they occurred.
func optimizeNode(id change.NodeID, changes []change.Change, baseline Baseline) ([]change.Change, error) {
	var (
		items  []any // change.Change or *slotGroup
		groups = make(map[string]*slotGroup)
	)
	for _, c := range changes {
		switch c := c.(type) {
		case change.IdChange, change.ParentChange:
			items = append(items, c)
		case change.Put, change.Remove:
			g, err := groupFor(groups, &items, c.(change.Keyed).SlotKey(), false)
			if err != nil {
				return nil, err
			}
			g.records = append(g.records, c)
		case change.ListInsert, change.ListInsertMany, change.ListRemove, change.ListReplace:
			g, err := groupFor(groups, &items, c.(change.Keyed).SlotKey(), true)
			if err != nil {
				return nil, err
			}
			g.records = append(g.records, c)
		default:
			return nil, fmt.Errorf("%w: unknown change %T", ErrInternal, c)
		}
	}

	out := make([]change.Change, 0, len(changes))
	for _, item := range items {
		g, ok := item.(*slotGroup)
		if !ok {
			out = append(out, item.(change.Change))
			continue
		}
		if g.list {
			reduced, err := reduceList(g.key, g.records)
			if err != nil {
				return nil, err
			}
			out = append(out, reduced...)
			continue
		}
		base, known := baseline.Lookup(id, g.key)
		out = append(out, reduceScalar(g.key, g.records, base, known)...)
	}
	return out, nil
}

func groupFor(groups map[string]*slotGroup, items *[]any, key string, list bool) (*slotGroup, error) {
	g, ok := groups[key]
	if !ok {
		g = &slotGroup{key: key, list: list}
		groups[key] = g
		*items = append(*items, g)
		return g, nil
	}
	if g.list != list {
		return nil, fmt.Errorf("%w: slot %q used as both scalar and list", ErrInternal, key)
	}
	return g, nil
}

// reduceScalar folds the Put and Remove records of one slot. When the baseline is not known
// and the first record is a Remove, that record's old value is the baseline.
func reduceScalar(key string, records []change.Change, base Slot, known bool) []change.Change {
	var (
		final       Slot
		firstRemove *change.Remove
	)
	for _, c := range records {
		switch c := c.(type) {
		case change.Put:
			final = Slot{Value: c.Value, Present: true}
		case change.Remove:
			final = Slot{}
			if firstRemove == nil {
				firstRemove = &c
			}
		}
	}

	if !known {
		if first, ok := records[0].(change.Remove); ok {
			base, known = Slot{Value: first.OldValue, Present: true}, true
		}
	}

	if !known {
		if final.Present {
			return []change.Change{change.Put{Key: key, Value: final.Value}}
		}
		return []change.Change{change.Remove{Key: key, OldValue: firstRemove.OldValue}}
	}

	switch {
	case !base.Present && !final.Present:
		return nil
	case !base.Present:
		return []change.Change{change.Put{Key: key, Value: final.Value}}
	case !final.Present:
		return []change.Change{change.Remove{Key: key, OldValue: base.Value}}
	case change.Equal(base.Value, final.Value):
		return nil
	default:
		return []change.Change{change.Put{Key: key, Value: final.Value}}
	}
}
