package statetree

import "errors"

// Slot errors
var (
	// ErrKeyNotFound indicates a Remove of a scalar slot that holds no value.
	ErrKeyNotFound = errors.New("key not present")

	// ErrIndexOutOfRange indicates a list position outside the current list bounds.
	ErrIndexOutOfRange = errors.New("list index out of range")

	// ErrSlotKind indicates a scalar operation on a list slot or the other way around.
	ErrSlotKind = errors.New("slot holds the other kind of value")

	// ErrNilValue indicates a nil value stored in a slot. Remove clears a scalar slot.
	ErrNilValue = errors.New("nil slot value")
)

// Structure errors
var (
	// ErrCycle indicates an attach that would make a node its own ancestor.
	ErrCycle = errors.New("attaching node would create a cycle")

	// ErrAlreadyAttached indicates a node that still has a parent being attached elsewhere.
	ErrAlreadyAttached = errors.New("node already has a parent")

	// ErrRootAttach indicates an attempt to place the root node into a slot.
	ErrRootAttach = errors.New("root node cannot be a child")

	// ErrForeignNode indicates a node that belongs to another tree, or a nil node.
	ErrForeignNode = errors.New("node does not belong to this tree")
)

// Identity errors
var (
	// ErrIDAssigned indicates a second assignment of a client id.
	ErrIDAssigned = errors.New("client id already assigned")

	// ErrIDTaken indicates a client id already held by another node of the tree.
	ErrIDTaken = errors.New("client id held by another node")

	// ErrInvalidID indicates a client id that is not positive.
	ErrInvalidID = errors.New("client ids are positive")
)
