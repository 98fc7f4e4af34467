package txlog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cosmos/statetree/change"
)

type ref change.NodeID

func (r ref) Ref() change.NodeID { return change.NodeID(r) }

func TestMirrorApply(t *testing.T) {
	m := NewMirror(1)
	require.NoError(t, m.Apply(rawLog(t, map[change.NodeID][]change.Change{
		1: {
			change.Put{Key: "title", Value: "hello"},
			change.ListInsertMany{Index: 0, Key: "items", Values: []any{ref(2), "x"}},
		},
		2: {
			change.IdChange{Old: 0, New: 5},
			change.ParentChange{OldParent: 0, NewParent: 1},
			change.Put{Key: "name", Value: "child"},
		},
	}, 1, 2)))

	cid, ok := m.ClientID(2)
	require.True(t, ok)
	require.Equal(t, 5, cid)
	require.Equal(t, map[change.NodeID]NodeState{
		1: {
			Scalars: map[string]any{"title": "hello"},
			Lists:   map[string][]any{"items": {change.NodeID(2), "x"}},
		},
		2: {
			Scalars: map[string]any{"name": "child"},
			Lists:   map[string][]any{},
		},
	}, m.Snapshot())

	require.NoError(t, m.Apply(rawLog(t, map[change.NodeID][]change.Change{
		1: {
			change.ListRemove{Index: 0, Key: "items", Value: ref(2)},
			change.ListReplace{Index: 0, Key: "items", OldValue: "x", NewValue: "y"},
			change.Remove{Key: "missing", OldValue: nil},
		},
	}, 1)))
	require.Equal(t, 1, m.Collect())
	_, ok = m.ClientID(2)
	require.False(t, ok)
	require.Equal(t, []any{"y"}, m.Snapshot()[1].Lists["items"])
}

func TestMirrorReplayErrors(t *testing.T) {
	for _, c := range []change.Change{
		change.ListInsert{Index: 1, Key: "l", Value: 1},
		change.ListInsertMany{Index: -1, Key: "l", Values: []any{1}},
		change.ListRemove{Index: 0, Key: "l", Value: 1},
		change.ListReplace{Index: 0, Key: "l", OldValue: 1, NewValue: 2},
	} {
		m := NewMirror(1)
		err := m.Apply(rawLog(t, map[change.NodeID][]change.Change{1: {c}}, 1))
		require.ErrorIs(t, err, ErrReplay, c.String())
	}
}
