package sim

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"

	"github.com/cosmos/statetree/change"
	"github.com/cosmos/statetree/statetree"
	"github.com/cosmos/statetree/txlog"
)

// ErrDiverged is returned by a verifying Driver when the replica built from the optimized logs
// no longer matches the tree.
var ErrDiverged = errors.New("client replica diverged from tree")

// rejected lists the mutation errors a random workload runs into by picking an unsuitable
// value or slot. They are counted, not returned.
var rejected = []error{
	statetree.ErrAlreadyAttached,
	statetree.ErrCycle,
	statetree.ErrSlotKind,
	statetree.ErrRootAttach,
}

// Stats accumulates over the transactions of a Driver.
type Stats struct {
	Transactions     int `json:"transactions"`
	Mutations        int `json:"mutations"`
	Rejected         int `json:"rejected"`
	RawChanges       int `json:"raw_changes"`
	OptimizedChanges int `json:"optimized_changes"`
	PrunedNodes      int `json:"pruned_nodes"`
	Nodes            int `json:"nodes"`
}

type Option func(*Driver)

// WithVerify keeps a client replica fed with every optimized log and compares it with the
// tree after each commit.
func WithVerify() Option {
	return func(d *Driver) {
		d.mirror = txlog.NewMirror(d.tree.Root().ID())
	}
}

// Driver runs the transactions of a Generator against a fresh tree. Commit holds the result of
// the last transaction; it is nil once all transactions ran.
type Driver struct {
	Commit *statetree.Commit
	Stats  Stats

	gen    Generator
	tree   *statetree.Tree
	rng    *rand.Rand
	nodes  []*statetree.Node
	mirror *txlog.Mirror
}

// Driver creates a driver for g and runs the first transaction.
func (g Generator) Driver(ctx context.Context, opts ...Option) (*Driver, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	d := &Driver{
		gen:  g,
		tree: statetree.NewTree(),
		rng:  newRand(g.Seed),
	}
	d.nodes = []*statetree.Node{d.tree.Root()}
	for _, opt := range opts {
		opt(d)
	}
	log.Debug().Str("profile", g.Name).Str("tree", d.tree.ID().String()).Int64("seed", g.Seed).Msg("starting driver")

	err := d.Next(ctx)
	return d, err
}

func (d *Driver) Tree() *statetree.Tree {
	return d.tree
}

func (d *Driver) Valid() bool {
	return d.Commit != nil
}

// Next runs one transaction and commits it.
func (d *Driver) Next(ctx context.Context) error {
	if d.Stats.Transactions >= d.gen.Transactions {
		d.Commit = nil
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ops := normInt(d.rng, d.gen.OpsMean, d.gen.OpsStdDev)
	for i := 0; i < ops; i++ {
		err := d.mutate()
		if err == nil {
			d.Stats.Mutations++
			continue
		}
		if !isRejected(err) {
			return fmt.Errorf("transaction %d, mutation %d: %w", d.Stats.Transactions+1, i, err)
		}
		d.Stats.Rejected++
	}

	c, err := d.tree.Commit(ctx)
	if err != nil {
		return fmt.Errorf("transaction %d: %w", d.Stats.Transactions+1, err)
	}
	d.Commit = c
	d.Stats.Transactions++
	d.Stats.RawChanges += c.Raw.Count()
	d.Stats.OptimizedChanges += c.Optimized.Count()
	d.Stats.PrunedNodes += c.Pruned()
	d.Stats.Nodes = len(c.Reachable)

	if d.mirror != nil {
		if err := d.verify(c); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) verify(c *statetree.Commit) error {
	if err := d.mirror.Apply(c.Optimized); err != nil {
		return fmt.Errorf("%w: version %d: %w", ErrDiverged, c.Version, err)
	}
	d.mirror.Collect()
	want, got := d.tree.Snapshot(), d.mirror.Snapshot()
	if len(want) != len(got) {
		return fmt.Errorf("%w: version %d: %d nodes in tree, %d in replica", ErrDiverged, c.Version, len(want), len(got))
	}
	for id, state := range want {
		if !sameState(state, got[id]) {
			return fmt.Errorf("%w: version %d: node %d", ErrDiverged, c.Version, id)
		}
	}
	return nil
}

func isRejected(err error) bool {
	for _, target := range rejected {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (d *Driver) mutate() error {
	n := d.pickAttached()
	useList := len(d.gen.ScalarKeys) == 0 || (len(d.gen.ListKeys) > 0 && d.rng.Float64() < d.gen.ListFraction)
	remove := d.rng.Float64() < d.gen.RemoveFraction

	if !useList {
		key := d.gen.ScalarKeys[d.rng.IntN(len(d.gen.ScalarKeys))]
		if remove {
			if _, ok := n.Get(key); ok {
				_, err := n.Remove(key)
				return err
			}
		}
		return n.Put(key, d.value())
	}

	key := d.gen.ListKeys[d.rng.IntN(len(d.gen.ListKeys))]
	size := n.Len(key)
	switch {
	case remove && size > 0:
		_, err := n.RemoveAt(key, d.rng.IntN(size))
		return err
	case size > 0 && d.rng.IntN(4) == 0:
		_, err := n.Set(key, d.rng.IntN(size), d.value())
		return err
	case d.rng.IntN(100) < d.gen.InsertManyPercent:
		values := make([]any, 2+d.rng.IntN(4))
		for i := range values {
			values[i] = d.value()
		}
		return n.InsertMany(key, d.rng.IntN(size+1), values...)
	default:
		return n.Insert(key, d.rng.IntN(size+1), d.value())
	}
}

// pickAttached samples a few nodes for one that is attached, falling back to the root.
func (d *Driver) pickAttached() *statetree.Node {
	for i := 0; i < 8; i++ {
		n := d.nodes[d.rng.IntN(len(d.nodes))]
		if n.IsAttached() {
			return n
		}
	}
	return d.tree.Root()
}

func (d *Driver) value() any {
	if d.rng.Float64() < d.gen.NodeFraction {
		if d.rng.Float64() < d.gen.ReattachFraction {
			n := d.nodes[d.rng.IntN(len(d.nodes))]
			if _, attached := n.Parent(); !attached && n != d.tree.Root() {
				return n
			}
		}
		if len(d.nodes) < d.gen.MaxNodes {
			n := d.tree.NewNode()
			d.nodes = append(d.nodes, n)
			return n
		}
	}
	if d.rng.Float64() < d.gen.IntValueFraction {
		return d.rng.IntN(1_000)
	}
	return genString(d.rng, d.gen.ValueMean, d.gen.ValueStdDev)
}

func sameState(a, b txlog.NodeState) bool {
	return maps.EqualFunc(a.Scalars, b.Scalars, change.Equal) &&
		maps.EqualFunc(a.Lists, b.Lists, func(x, y []any) bool {
			return slices.EqualFunc(x, y, change.Equal)
		})
}
