package txlog

import (
	"fmt"
	"slices"
	"sort"

	"github.com/cosmos/statetree/change"
)

// listEntry is one entry of the simulated list. Fresh entries were inserted during the
// transaction; the others were in the list when it began and are addressed by basePos.
type listEntry struct {
	value any
	fresh bool
	seq   int

	basePos   int
	baseValue any
	baseKnown bool
	replaced  bool
	removed   bool
}

// listSim replays the positional records of one list slot. The baseline contents are not
// needed: entries in front of the highest index touched are materialized on demand, and
// untouched baseline entries behind them never influence an emitted index.
type listSim struct {
	key      string
	entries  []*listEntry
	padded   int
	seq      int
	removed  []*listEntry
	replaced []*listEntry
}

func (s *listSim) pad(n int) {
	for len(s.entries) < n {
		s.entries = append(s.entries, &listEntry{basePos: s.padded})
		s.padded++
	}
}

func (s *listSim) insert(index int, values []any) error {
	if index < 0 {
		return fmt.Errorf("%w: insert at %d in %q", ErrInternal, index, s.key)
	}
	s.pad(index)
	fresh := make([]*listEntry, len(values))
	for i, v := range values {
		fresh[i] = &listEntry{value: v, fresh: true, seq: s.seq}
		s.seq++
	}
	s.entries = slices.Insert(s.entries, index, fresh...)
	return nil
}

func (s *listSim) remove(index int, value any) error {
	if index < 0 {
		return fmt.Errorf("%w: remove at %d in %q", ErrInternal, index, s.key)
	}
	s.pad(index + 1)
	e := s.entries[index]
	s.entries = slices.Delete(s.entries, index, index+1)
	if e.fresh {
		// inserted and removed in this transaction, neither record survives
		return nil
	}
	if !e.baseKnown {
		e.baseValue, e.baseKnown = value, true
	}
	e.removed = true
	s.removed = append(s.removed, e)
	return nil
}

func (s *listSim) replace(index int, oldValue, newValue any) error {
	if index < 0 {
		return fmt.Errorf("%w: replace at %d in %q", ErrInternal, index, s.key)
	}
	s.pad(index + 1)
	e := s.entries[index]
	if !e.fresh {
		if !e.baseKnown {
			e.baseValue, e.baseKnown = oldValue, true
		}
		if !e.replaced {
			e.replaced = true
			s.replaced = append(s.replaced, e)
		}
	}
	e.value = newValue
	return nil
}

// reduceList replays the records of a list slot and emits, in this order, the removes of
// baseline entries, the replaces of surviving baseline entries and the inserts of fresh
// entries. Each index is valid against the list as left by the records emitted before it.
//
// Inserts are coalesced only while they are consecutive in raw order and land next to each
// other; an insert placed before the run, or separated from it by an entry already present,
// starts a new record. Removes are never merged.
func reduceList(key string, records []change.Change) ([]change.Change, error) {
	s := &listSim{key: key}
	for _, c := range records {
		var err error
		switch c := c.(type) {
		case change.ListInsert:
			err = s.insert(c.Index, []any{c.Value})
		case change.ListInsertMany:
			err = s.insert(c.Index, c.Values)
		case change.ListRemove:
			err = s.remove(c.Index, c.Value)
		case change.ListReplace:
			err = s.replace(c.Index, c.OldValue, c.NewValue)
		default:
			err = fmt.Errorf("%w: %T in list %q", ErrInternal, c, key)
		}
		if err != nil {
			return nil, err
		}
	}

	var out []change.Change
	out = s.emitRemoves(out)
	out = s.emitReplaces(out)
	out = s.emitInserts(out)
	return out, nil
}

func (s *listSim) emitRemoves(out []change.Change) []change.Change {
	if len(s.removed) == 0 {
		return out
	}
	positions := make([]int, len(s.removed))
	for i, e := range s.removed {
		positions[i] = e.basePos
	}
	sort.Ints(positions)

	done := newFenwick(len(positions))
	for _, e := range s.removed {
		rank := sort.SearchInts(positions, e.basePos)
		out = append(out, change.ListRemove{
			Index: e.basePos - done.prefix(rank),
			Key:   s.key,
			Value: e.baseValue,
		})
		done.add(rank, 1)
	}
	return out
}

func (s *listSim) emitReplaces(out []change.Change) []change.Change {
	var positions []int
	for _, e := range s.removed {
		positions = append(positions, e.basePos)
	}
	sort.Ints(positions)

	for _, e := range s.replaced {
		if e.removed || change.Equal(e.baseValue, e.value) {
			continue
		}
		out = append(out, change.ListReplace{
			Index:    e.basePos - sort.SearchInts(positions, e.basePos),
			Key:      s.key,
			OldValue: e.baseValue,
			NewValue: e.value,
		})
	}
	return out
}

func (s *listSim) emitInserts(out []change.Change) []change.Change {
	type placed struct {
		entry *listEntry
		pos   int
	}
	var fresh []placed
	visible := newFenwick(len(s.entries))
	for pos, e := range s.entries {
		if e.fresh {
			fresh = append(fresh, placed{entry: e, pos: pos})
		} else {
			visible.add(pos, 1)
		}
	}
	sort.Slice(fresh, func(i, j int) bool {
		return fresh[i].entry.seq < fresh[j].entry.seq
	})

	var (
		run      []any
		runStart int
		last     int
	)
	flush := func() {
		switch len(run) {
		case 0:
		case 1:
			out = append(out, change.ListInsert{Index: runStart, Key: s.key, Value: run[0]})
		default:
			out = append(out, change.ListInsertMany{Index: runStart, Key: s.key, Values: run})
		}
		run = nil
	}
	for _, f := range fresh {
		if len(run) > 0 && f.pos > last && visible.between(last, f.pos) == 0 {
			run = append(run, f.entry.value)
		} else {
			flush()
			runStart = visible.prefix(f.pos)
			run = []any{f.entry.value}
		}
		last = f.pos
		visible.add(f.pos, 1)
	}
	flush()
	return out
}
