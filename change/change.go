// Package change defines the records describing a single mutation of a state tree node.
//
// The set of variants is closed: every Change is one of IdChange, Put, Remove, ListInsert,
// ListInsertMany, ListRemove, ListReplace or ParentChange. Consumers switch on the concrete
// type; the unexported marker method keeps other packages from adding variants.
package change

import (
	"fmt"
	"reflect"
)

// NodeID is the stable arena key of a node. It never changes during the lifetime of a tree
// and keys the transaction log.
type NodeID uint64

// Kind enumerates the change variants.
type Kind uint8

const (
	KindID Kind = iota
	KindPut
	KindRemove
	KindListInsert
	KindListInsertMany
	KindListRemove
	KindListReplace
	KindParent
)

var kindNames = [...]string{
	KindID:             "id",
	KindPut:            "put",
	KindRemove:         "remove",
	KindListInsert:     "list-insert",
	KindListInsertMany: "list-insert-many",
	KindListRemove:     "list-remove",
	KindListReplace:    "list-replace",
	KindParent:         "parent",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Change is one atomic mutation of a node.
type Change interface {
	Kind() Kind
	String() string
	isChange()
}

// Keyed is implemented by every change that targets a slot.
type Keyed interface {
	Change
	SlotKey() string
}

// Indexed is implemented by the list changes.
type Indexed interface {
	Keyed
	Position() int
}

// Ref is implemented by values that reference a child node.
type Ref interface {
	Ref() NodeID
}

// RefID returns the node referenced by v, if v is a node reference.
func RefID(v any) (NodeID, bool) {
	if r, ok := v.(Ref); ok && r != nil {
		return r.Ref(), true
	}
	return 0, false
}

// Equal reports whether two slot values are the same. Node references compare by identity,
// values that are comparable at runtime with ==, everything else structurally.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	// a struct or array type with interface fields is comparable, but == panics when such a
	// field holds a slice, map or func
	if reflect.ValueOf(a).Comparable() && reflect.ValueOf(b).Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// IdChange records the assignment of a client visible id.
type IdChange struct {
	Old, New int
}

func (IdChange) Kind() Kind { return KindID }
func (IdChange) isChange() {}
func (c IdChange) String() string {
	return fmt.Sprintf("id(%d -> %d)", c.Old, c.New)
}

// Put sets a scalar slot.
type Put struct {
	Key   string
	Value any
}

func (Put) Kind() Kind { return KindPut }
func (Put) isChange() {}
func (c Put) SlotKey() string { return c.Key }
func (c Put) String() string { return fmt.Sprintf("put(%s=%s)", c.Key, formatValue(c.Value)) }

// Remove clears a scalar slot. OldValue is the value held before the removal.
type Remove struct {
	Key      string
	OldValue any
}

func (Remove) Kind() Kind { return KindRemove }
func (Remove) isChange() {}
func (c Remove) SlotKey() string { return c.Key }
func (c Remove) String() string {
	return fmt.Sprintf("remove(%s was %s)", c.Key, formatValue(c.OldValue))
}

// ListInsert inserts Value so that it ends up at Index.
type ListInsert struct {
	Index int
	Key   string
	Value any
}

func (ListInsert) Kind() Kind { return KindListInsert }
func (ListInsert) isChange() {}
func (c ListInsert) SlotKey() string { return c.Key }
func (c ListInsert) Position() int { return c.Index }
func (c ListInsert) String() string {
	return fmt.Sprintf("insert(%s[%d]=%s)", c.Key, c.Index, formatValue(c.Value))
}

// ListInsertMany inserts Values as a contiguous run starting at Index.
type ListInsertMany struct {
	Index  int
	Key    string
	Values []any
}

func (ListInsertMany) Kind() Kind { return KindListInsertMany }
func (ListInsertMany) isChange() {}
func (c ListInsertMany) SlotKey() string { return c.Key }
func (c ListInsertMany) Position() int { return c.Index }
func (c ListInsertMany) String() string {
	return fmt.Sprintf("insert-many(%s[%d]=%s)", c.Key, c.Index, formatValue(c.Values))
}

// ListRemove removes the entry at Index. Value is the removed entry.
type ListRemove struct {
	Index int
	Key   string
	Value any
}

func (ListRemove) Kind() Kind { return KindListRemove }
func (ListRemove) isChange() {}
func (c ListRemove) SlotKey() string { return c.Key }
func (c ListRemove) Position() int { return c.Index }
func (c ListRemove) String() string {
	return fmt.Sprintf("list-remove(%s[%d] was %s)", c.Key, c.Index, formatValue(c.Value))
}

// ListReplace overwrites the entry at Index.
type ListReplace struct {
	Index    int
	Key      string
	OldValue any
	NewValue any
}

func (ListReplace) Kind() Kind { return KindListReplace }
func (ListReplace) isChange() {}
func (c ListReplace) SlotKey() string { return c.Key }
func (c ListReplace) Position() int { return c.Index }
func (c ListReplace) String() string {
	return fmt.Sprintf("replace(%s[%d] %s -> %s)", c.Key, c.Index,
		formatValue(c.OldValue), formatValue(c.NewValue))
}

// ParentChange records a node moving between parents. Zero means no parent.
type ParentChange struct {
	OldParent NodeID
	NewParent NodeID
}

func (ParentChange) Kind() Kind { return KindParent }
func (ParentChange) isChange() {}
func (c ParentChange) String() string {
	return fmt.Sprintf("parent(%d -> %d)", c.OldParent, c.NewParent)
}

func formatValue(v any) string {
	if id, ok := RefID(v); ok {
		return fmt.Sprintf("#%d", id)
	}
	if vs, ok := v.([]any); ok {
		s := "["
		for i, e := range vs {
			if i > 0 {
				s += " "
			}
			s += formatValue(e)
		}
		return s + "]"
	}
	return fmt.Sprintf("%v", v)
}

var (
	_ Change  = IdChange{}
	_ Keyed   = Put{}
	_ Keyed   = Remove{}
	_ Indexed = ListInsert{}
	_ Indexed = ListInsertMany{}
	_ Indexed = ListRemove{}
	_ Indexed = ListReplace{}
	_ Change  = ParentChange{}
)
