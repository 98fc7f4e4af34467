package txlog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cosmos/statetree/change"
)

func TestLogAppend(t *testing.T) {
	l := NewLog()
	require.NoError(t, l.Append(2, []change.Change{change.Put{Key: "a", Value: 1}}))
	require.NoError(t, l.Append(1, []change.Change{
		change.Put{Key: "b", Value: 2},
		change.Remove{Key: "b", OldValue: 2},
	}))
	require.ErrorIs(t, l.Append(2, nil), ErrInternal)

	require.Equal(t, []change.NodeID{2, 1}, l.Nodes())
	require.Equal(t, 2, l.Len())
	require.Equal(t, 3, l.Count())
	require.True(t, l.Contains(1))
	require.False(t, l.Contains(3))
	require.Equal(t, []change.Change{
		change.Put{Key: "a", Value: 1},
		change.Put{Key: "b", Value: 2},
		change.Remove{Key: "b", OldValue: 2},
	}, l.Flatten())
	require.Equal(t, "#2: put(a=1)\n#1: put(b=2) remove(b was 2)\n", l.String())

	filtered := l.Filter(NodeSet{1: {}}.Contains)
	require.Equal(t, []change.NodeID{1}, filtered.Nodes())

	clone := l.Clone()
	require.Equal(t, l.Flatten(), clone.Flatten())
}

func TestBuilderCopiesPending(t *testing.T) {
	b := NewBuilder()
	pending := []change.Change{change.Put{Key: "a", Value: 1}}
	base := map[string]Slot{"a": {}}
	require.NoError(t, b.Visit(1, pending, base))
	require.NoError(t, b.Visit(2, nil, nil))
	require.ErrorIs(t, b.Visit(1, pending, nil), ErrInternal)

	pending[0] = change.Put{Key: "a", Value: 2}
	base["a"] = Slot{Value: 5, Present: true}

	require.Equal(t, []change.Change{change.Put{Key: "a", Value: 1}}, b.Log().Changes(1))
	require.False(t, b.Log().Contains(2))
	slot, ok := b.Baseline().Lookup(1, "a")
	require.True(t, ok)
	require.False(t, slot.Present)
	_, ok = b.Baseline().Lookup(2, "a")
	require.False(t, ok)

	var none Baseline
	_, ok = none.Lookup(1, "a")
	require.False(t, ok)
}
