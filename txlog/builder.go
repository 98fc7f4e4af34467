package txlog

import (
	"github.com/cosmos/statetree/change"
)

// Slot is the state of a scalar slot: absent, or present with a value.
type Slot struct {
	Value   any
	Present bool
}

// Baseline holds the state of every scalar slot touched in a transaction as it was when the
// transaction began, i.e. as last seen by the client.
type Baseline map[change.NodeID]map[string]Slot

// Lookup returns the baseline of a slot. ok is false when the slot was not captured.
func (b Baseline) Lookup(id change.NodeID, key string) (Slot, bool) {
	if b == nil {
		return Slot{}, false
	}
	slot, ok := b[id][key]
	return slot, ok
}

// Visitor receives every node harvested by a commit walk, in walk order. pending is the
// node's change sequence in call order and base the baseline of the scalar slots it touched.
type Visitor interface {
	Visit(id change.NodeID, pending []change.Change, base map[string]Slot) error
}

// Builder is a Visitor assembling the raw transaction log of a commit.
type Builder struct {
	log      *Log
	baseline Baseline
}

func NewBuilder() *Builder {
	return &Builder{
		log:      NewLog(),
		baseline: make(Baseline),
	}
}

// Visit copies the pending records of a node into the log. Nodes without pending records are
// skipped. The caller keeps ownership of pending and base.
func (b *Builder) Visit(id change.NodeID, pending []change.Change, base map[string]Slot) error {
	if len(pending) == 0 {
		return nil
	}
	changes := make([]change.Change, len(pending))
	copy(changes, pending)
	if err := b.log.Append(id, changes); err != nil {
		return err
	}
	if len(base) > 0 {
		slots := make(map[string]Slot, len(base))
		for k, v := range base {
			slots[k] = v
		}
		b.baseline[id] = slots
	}
	return nil
}

// Log returns the raw log assembled so far.
func (b *Builder) Log() *Log {
	return b.log
}

// Baseline returns the captured baseline of the harvested nodes.
func (b *Builder) Baseline() Baseline {
	return b.baseline
}

var _ Visitor = (*Builder)(nil)
