package statetree

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cosmos/statetree/change"
	"github.com/cosmos/statetree/txlog"
)

var tracer = otel.Tracer("github.com/cosmos/statetree/statetree")

// Commit is the outcome of one transaction.
type Commit struct {
	ID      ulid.ULID
	Version int64

	// Raw holds every harvested record, including those of nodes that were unreachable at
	// the commit. Optimized is the log to send to the client.
	Raw       *txlog.Log
	Optimized *txlog.Log

	// Reachable is the set of nodes reachable from the root when the commit ran.
	Reachable txlog.NodeSet
}

// Pruned is the number of nodes in the raw log that were dropped for being unreachable.
func (c *Commit) Pruned() int {
	pruned := 0
	for _, id := range c.Raw.Nodes() {
		if !c.Reachable.Contains(id) {
			pruned++
		}
	}
	return pruned
}

// Commit harvests the running transaction, optimizes it against the state the client last
// saw and starts a new transaction. On error the pending records are kept, so a later Commit
// can retry.
func (t *Tree) Commit(ctx context.Context) (*Commit, error) {
	_, span := tracer.Start(ctx, "Tree.Commit")
	defer span.End()
	start := time.Now()

	fail := func(err error) (*Commit, error) {
		metricCommitFailures.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Int64("version", t.version).Msg("commit failed")
		return nil, err
	}

	b := txlog.NewBuilder()
	reachable, order, err := t.harvest(b)
	if err != nil {
		return fail(err)
	}
	optimized, err := txlog.Optimize(b.Log(), reachable, txlog.WithBaseline(b.Baseline()))
	if err != nil {
		return fail(err)
	}

	t.settle(reachable, order)
	t.version++
	c := &Commit{
		ID:        ulid.Make(),
		Version:   t.version,
		Raw:       b.Log(),
		Optimized: optimized,
		Reachable: reachable,
	}

	took := time.Since(start)
	metricCommits.Inc()
	metricRawChanges.Add(float64(c.Raw.Count()))
	metricOptimizedChanges.Add(float64(c.Optimized.Count()))
	metricPrunedNodes.Add(float64(c.Pruned()))
	metricCommitDuration.Observe(took.Seconds())

	span.SetAttributes(
		attribute.String("commit", c.ID.String()),
		attribute.Int64("version", c.Version),
		attribute.Int("raw_changes", c.Raw.Count()),
		attribute.Int("optimized_changes", c.Optimized.Count()),
	)
	log.Debug().
		Str("commit", c.ID.String()).
		Int64("version", c.Version).
		Int("raw", c.Raw.Count()).
		Int("optimized", c.Optimized.Count()).
		Int("nodes", c.Optimized.Len()).
		Int("pruned", c.Pruned()).
		Dur("took", took).
		Msg("committed transaction")
	return c, nil
}

// Harvest walks the running transaction and hands every node with something to send to v:
// first the touched nodes in first touch order, then the reachable nodes the client does not
// know yet, depth first from the root. A reachable node the client does not know is
// introduced with its full current state instead of its pending records, which keep only
// its id and parent changes. Harvest does not modify the tree.
func (t *Tree) Harvest(v txlog.Visitor) (txlog.NodeSet, error) {
	reachable, _, err := t.harvest(v)
	return reachable, err
}

func (t *Tree) harvest(v txlog.Visitor) (txlog.NodeSet, []*Node, error) {
	reachable, order, err := t.reachable()
	if err != nil {
		return nil, nil, err
	}
	for _, id := range t.dirty {
		n, ok := t.nodes[id]
		if !ok {
			return nil, nil, fmt.Errorf("%w: touched node %d missing from arena", txlog.ErrInternal, id)
		}
		if err := t.visit(v, n, reachable); err != nil {
			return nil, nil, err
		}
	}
	for _, n := range order {
		if n.known || n.dirty {
			continue
		}
		if err := t.visit(v, n, reachable); err != nil {
			return nil, nil, err
		}
	}
	return reachable, order, nil
}

func (t *Tree) visit(v txlog.Visitor, n *Node, reachable txlog.NodeSet) error {
	if n.known || !reachable.Contains(n.id) {
		return v.Visit(n.id, n.pending, n.base)
	}
	pending, base := n.introduction()
	return v.Visit(n.id, pending, base)
}

// introduction builds the records that create n on a client that has never seen it, against
// a baseline in which every scalar slot is absent.
func (n *Node) introduction() ([]change.Change, map[string]txlog.Slot) {
	var (
		out    []change.Change
		hasID  bool
		base   = make(map[string]txlog.Slot)
		parent []change.Change
	)
	for _, c := range n.pending {
		switch c.(type) {
		case change.IdChange:
			hasID = true
			out = append(out, c)
		case change.ParentChange:
			parent = append(parent, c)
		}
	}
	if !hasID && n.clientID != 0 {
		out = append(out, change.IdChange{Old: 0, New: n.clientID})
	}
	out = append(out, parent...)

	n.scalars.Scan(func(key string, v any) bool {
		base[key] = txlog.Slot{}
		out = append(out, change.Put{Key: key, Value: v})
		return true
	})
	n.lists.Scan(func(key string, l *listSlot) bool {
		switch len(l.values) {
		case 0:
		case 1:
			out = append(out, change.ListInsert{Index: 0, Key: key, Value: l.values[0]})
		default:
			values := make([]any, len(l.values))
			copy(values, l.values)
			out = append(out, change.ListInsertMany{Index: 0, Key: key, Values: values})
		}
		return true
	})
	return out, base
}

// reachable walks the tree from the root and returns the reachable set and the nodes in
// depth first order. Every child must name its holder as parent and be held only once.
func (t *Tree) reachable() (txlog.NodeSet, []*Node, error) {
	seen := make(txlog.NodeSet)
	var order []*Node
	stack := []*Node{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen.Contains(n.id) {
			return nil, nil, fmt.Errorf("%w: %s held in two slots", txlog.ErrInternal, n)
		}
		seen.Add(n.id)
		order = append(order, n)

		children := n.children()
		for i := len(children) - 1; i >= 0; i-- {
			child := children[i]
			if child.parent != n {
				return nil, nil, fmt.Errorf("%w: %s held by %s names another parent", txlog.ErrInternal, child, n)
			}
			stack = append(stack, child)
		}
	}
	return seen, order, nil
}

// settle makes the harvested transaction the committed state: pending records and captured
// baselines are dropped, reachable nodes become known to the client and the others are
// forgotten by it and leave the arena.
func (t *Tree) settle(reachable txlog.NodeSet, order []*Node) {
	for _, id := range t.dirty {
		if n, ok := t.nodes[id]; ok {
			n.pending = nil
			n.base = nil
			n.dirty = false
		}
	}
	t.dirty = nil

	for id, n := range t.nodes {
		if !reachable.Contains(id) && n != t.root {
			n.known = false
			delete(t.nodes, id)
		}
	}
	for _, n := range order {
		n.known = true
		t.nodes[n.id] = n
	}
}
