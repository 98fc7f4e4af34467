package statetree

import (
	"fmt"
	"slices"

	"github.com/cosmos/statetree/change"
)

// Put stores a value in a scalar slot. A *Node value becomes a child of n; a child previously
// held by the slot is detached.
func (n *Node) Put(key string, value any) error {
	if _, ok := n.lists.Get(key); ok {
		return fmt.Errorf("put %q on %s: %w", key, n, ErrSlotKind)
	}
	if cur, _ := n.scalars.Get(key); sameChild(cur, value) {
		n.captureBase(key)
		n.record(change.Put{Key: key, Value: value})
		return nil
	}
	child, err := n.adoptable(value)
	if err != nil {
		return fmt.Errorf("put %q on %s: %w", key, n, err)
	}

	n.captureBase(key)
	old, _ := n.scalars.Set(key, value)
	n.record(change.Put{Key: key, Value: value})
	n.release(old)
	n.adopt(child)
	return nil
}

// Remove clears a scalar slot and returns the value it held.
func (n *Node) Remove(key string) (any, error) {
	if _, ok := n.lists.Get(key); ok {
		return nil, fmt.Errorf("remove %q on %s: %w", key, n, ErrSlotKind)
	}
	if _, ok := n.scalars.Get(key); !ok {
		return nil, fmt.Errorf("remove %q on %s: %w", key, n, ErrKeyNotFound)
	}

	n.captureBase(key)
	old, _ := n.scalars.Delete(key)
	n.record(change.Remove{Key: key, OldValue: old})
	n.release(old)
	return old, nil
}

// Insert places value at index of a list slot, shifting the entries from index on. Inserting
// into an unused key creates the list slot.
func (n *Node) Insert(key string, index int, value any) error {
	return n.InsertMany(key, index, value)
}

// InsertMany places values at index of a list slot in the given order.
func (n *Node) InsertMany(key string, index int, values ...any) error {
	l, err := n.listSlot(key)
	if err != nil {
		return fmt.Errorf("insert into %q on %s: %w", key, n, err)
	}
	if index < 0 || index > len(l.values) {
		return fmt.Errorf("insert into %q on %s at %d, length %d: %w", key, n, index, len(l.values), ErrIndexOutOfRange)
	}
	if len(values) == 0 {
		return nil
	}
	children := make([]*Node, 0, len(values))
	for _, v := range values {
		child, err := n.adoptable(v)
		if err != nil {
			return fmt.Errorf("insert into %q on %s: %w", key, n, err)
		}
		if child == nil {
			continue
		}
		if slices.Contains(children, child) {
			return fmt.Errorf("insert into %q on %s: %s twice: %w", key, n, child, ErrAlreadyAttached)
		}
		children = append(children, child)
	}

	if _, ok := n.lists.Get(key); !ok {
		n.lists.Set(key, l)
	}
	values = slices.Clone(values)
	l.values = slices.Insert(l.values, index, values...)
	if len(values) == 1 {
		n.record(change.ListInsert{Index: index, Key: key, Value: values[0]})
	} else {
		n.record(change.ListInsertMany{Index: index, Key: key, Values: values})
	}
	for _, child := range children {
		n.adopt(child)
	}
	return nil
}

// Append adds value at the end of a list slot.
func (n *Node) Append(key string, value any) error {
	return n.Insert(key, n.Len(key), value)
}

// RemoveAt removes the entry at index of a list slot and returns it.
func (n *Node) RemoveAt(key string, index int) (any, error) {
	l, err := n.listSlot(key)
	if err != nil {
		return nil, fmt.Errorf("remove from %q on %s: %w", key, n, err)
	}
	if index < 0 || index >= len(l.values) {
		return nil, fmt.Errorf("remove from %q on %s at %d, length %d: %w", key, n, index, len(l.values), ErrIndexOutOfRange)
	}

	old := l.values[index]
	l.values = slices.Delete(l.values, index, index+1)
	n.record(change.ListRemove{Index: index, Key: key, Value: old})
	n.release(old)
	return old, nil
}

// RemoveValue removes the first entry of a list slot equal to value. It reports whether an
// entry was found.
func (n *Node) RemoveValue(key string, value any) (bool, error) {
	l, err := n.listSlot(key)
	if err != nil {
		return false, fmt.Errorf("remove from %q on %s: %w", key, n, err)
	}
	index := slices.IndexFunc(l.values, func(v any) bool { return change.Equal(v, value) })
	if index < 0 {
		return false, nil
	}
	if _, err := n.RemoveAt(key, index); err != nil {
		return false, err
	}
	return true, nil
}

// Set replaces the entry at index of a list slot and returns the previous entry.
func (n *Node) Set(key string, index int, value any) (any, error) {
	l, err := n.listSlot(key)
	if err != nil {
		return nil, fmt.Errorf("set in %q on %s: %w", key, n, err)
	}
	if index < 0 || index >= len(l.values) {
		return nil, fmt.Errorf("set in %q on %s at %d, length %d: %w", key, n, index, len(l.values), ErrIndexOutOfRange)
	}
	if old := l.values[index]; sameChild(old, value) {
		n.record(change.ListReplace{Index: index, Key: key, OldValue: old, NewValue: value})
		return old, nil
	}
	child, err := n.adoptable(value)
	if err != nil {
		return nil, fmt.Errorf("set in %q on %s: %w", key, n, err)
	}

	old := l.values[index]
	l.values[index] = value
	n.record(change.ListReplace{Index: index, Key: key, OldValue: old, NewValue: value})
	n.release(old)
	n.adopt(child)
	return old, nil
}

// Clear removes every entry of a list slot, front to back.
func (n *Node) Clear(key string) error {
	if _, err := n.listSlot(key); err != nil {
		return fmt.Errorf("clear %q on %s: %w", key, n, err)
	}
	for n.Len(key) > 0 {
		if _, err := n.RemoveAt(key, 0); err != nil {
			return err
		}
	}
	return nil
}

// AssignClientID gives a detached node its client id ahead of attachment. Nodes attached
// without one are assigned the next free id.
func (n *Node) AssignClientID(id int) error {
	if n.clientID != 0 {
		return fmt.Errorf("assign %d to %s holding %d: %w", id, n, n.clientID, ErrIDAssigned)
	}
	if id <= 0 {
		return fmt.Errorf("assign %d to %s: %w", id, n, ErrInvalidID)
	}
	if holder, taken := n.tree.clientIDs[id]; taken {
		return fmt.Errorf("assign %d to %s, held by %s: %w", id, n, holder, ErrIDTaken)
	}
	n.clientID = id
	n.tree.clientIDs[id] = n
	if id > n.tree.lastClientID {
		n.tree.lastClientID = id
	}
	n.record(change.IdChange{Old: 0, New: id})
	return nil
}

// listSlot returns the list stored under key, or a new empty list the caller stores on its
// first insert.
func (n *Node) listSlot(key string) (*listSlot, error) {
	if _, ok := n.scalars.Get(key); ok {
		return nil, ErrSlotKind
	}
	l, ok := n.lists.Get(key)
	if ok {
		return l, nil
	}
	if n.touchedAsScalar(key) {
		return nil, ErrSlotKind
	}
	return &listSlot{}, nil
}

// touchedAsScalar reports whether key was used as a scalar slot during the running
// transaction, which keeps the key a scalar until the commit even if it is empty now.
func (n *Node) touchedAsScalar(key string) bool {
	_, ok := n.base[key]
	return ok
}

// adoptable checks that v can be stored in a slot of n and, when it is a node, that it can
// become a child of n.
func (n *Node) adoptable(v any) (*Node, error) {
	if v == nil {
		return nil, ErrNilValue
	}
	child, ok := v.(*Node)
	if !ok {
		return nil, nil
	}
	if child == nil || child.tree != n.tree {
		return nil, ErrForeignNode
	}
	if child == n.tree.root {
		return nil, ErrRootAttach
	}
	if child.parent != nil {
		return nil, fmt.Errorf("%s: %w", child, ErrAlreadyAttached)
	}
	for cur, ok := n, true; ok; cur, ok = cur.Parent() {
		if cur == child {
			return nil, fmt.Errorf("%s is an ancestor of %s: %w", child, n, ErrCycle)
		}
	}
	return child, nil
}

// sameChild reports whether v is the node already held as cur. Storing a child back into its
// own slot keeps it attached.
func sameChild(cur, v any) bool {
	child, ok := v.(*Node)
	if !ok || child == nil {
		return false
	}
	held, _ := cur.(*Node)
	return held == child
}

func (n *Node) adopt(child *Node) {
	if child == nil {
		return
	}
	if child.clientID == 0 {
		child.clientID = n.tree.nextClientID()
		n.tree.clientIDs[child.clientID] = child
		child.record(change.IdChange{Old: 0, New: child.clientID})
	}
	child.record(change.ParentChange{OldParent: 0, NewParent: n.id})
	child.parent = n
}

func (n *Node) release(v any) {
	child, ok := v.(*Node)
	if !ok || child == nil || child.parent != n {
		return
	}
	child.record(change.ParentChange{OldParent: n.id, NewParent: 0})
	child.parent = nil
}
