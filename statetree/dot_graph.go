package statetree

import (
	"fmt"
	"strings"

	"github.com/emicklei/dot"
)

// RenderDotGraph renders the nodes reachable from n as a Graphviz digraph. Each node lists its
// scalar slots and plain list entries; edges are labelled with the slot holding the child.
func RenderDotGraph(n *Node) string {
	graph := dot.NewGraph(dot.Directed)
	if n == nil {
		return graph.String()
	}

	var traverse func(node *Node, parent *dot.Node, slot string)
	traverse = func(node *Node, parent *dot.Node, slot string) {
		var label strings.Builder
		fmt.Fprintf(&label, "%s C:%d", node, node.clientID)
		if node.dirty {
			fmt.Fprintf(&label, " P:%d", len(node.pending))
		}
		label.WriteString("\n")

		type edge struct {
			child *Node
			slot  string
		}
		var edges []edge
		node.scalars.Scan(func(key string, v any) bool {
			if child, ok := v.(*Node); ok {
				edges = append(edges, edge{child, key})
				return true
			}
			fmt.Fprintf(&label, "%s=%v\n", key, v)
			return true
		})
		node.lists.Scan(func(key string, l *listSlot) bool {
			var plain []string
			for i, v := range l.values {
				if child, ok := v.(*Node); ok {
					edges = append(edges, edge{child, fmt.Sprintf("%s[%d]", key, i)})
					continue
				}
				plain = append(plain, fmt.Sprintf("%v", v))
			}
			if len(plain) > 0 {
				fmt.Fprintf(&label, "%s=[%s]\n", key, strings.Join(plain, " "))
			}
			return true
		})

		gn := graph.Node(node.String()).Label(label.String())
		if parent != nil {
			parent.Edge(gn, slot)
		}
		for _, e := range edges {
			traverse(e.child, &gn, e.slot)
		}
	}
	traverse(n, nil, "")

	return graph.String()
}
