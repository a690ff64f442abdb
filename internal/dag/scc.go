package dag

import (
	"slices"
	"sort"
)

// StronglyConnected partitions the graph into strongly connected components
// using an iterative Tarjan walk. Every node appears in exactly one component.
// Members of a component are sorted by ID, and components are returned in
// order of their first member.
func (g *Graph) StronglyConnected() [][]string {
	index := 0
	nodeIndex := make(map[string]int)
	lowLink := make(map[string]int)
	onStack := make(map[string]bool)
	stack := make([]string, 0)
	var components [][]string

	// frame replaces the recursive call stack so deep graphs cannot overflow.
	type frame struct {
		id        string
		edgeIndex int
		child     string
	}

	strongConnect := func(start string) {
		nodeIndex[start] = index
		lowLink[start] = index
		index++
		stack = append(stack, start)
		onStack[start] = true
		callStack := []frame{{id: start}}

		for len(callStack) > 0 {
			f := &callStack[len(callStack)-1]

			if f.child != "" {
				lowLink[f.id] = min(lowLink[f.id], lowLink[f.child])
				f.child = ""
			}

			pushed := false
			children := g.edges[f.id]
			for f.edgeIndex < len(children) {
				w := children[f.edgeIndex]
				f.edgeIndex++

				if _, seen := nodeIndex[w]; !seen {
					nodeIndex[w] = index
					lowLink[w] = index
					index++
					stack = append(stack, w)
					onStack[w] = true
					f.child = w
					callStack = append(callStack, frame{id: w})
					pushed = true
					break
				}
				if onStack[w] {
					lowLink[f.id] = min(lowLink[f.id], nodeIndex[w])
				}
			}
			if pushed {
				continue
			}

			if lowLink[f.id] == nodeIndex[f.id] {
				var component []string
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					component = append(component, w)
					if w == f.id {
						break
					}
				}
				sort.Strings(component)
				components = append(components, component)
			}
			callStack = callStack[:len(callStack)-1]
		}
	}

	for _, id := range g.ids() {
		if _, seen := nodeIndex[id]; !seen {
			strongConnect(id)
		}
	}

	sort.Slice(components, func(i, j int) bool {
		return components[i][0] < components[j][0]
	})
	return components
}

// IsCyclic reports whether the component containing members has a cycle:
// it has more than one member or its single member depends on itself.
func (g *Graph) IsCyclic(members []string) bool {
	return len(members) > 1 || (len(members) == 1 && g.HasSelfLoop(members[0]))
}

// Condensation is the acyclic graph of strongly connected components.
type Condensation struct {
	// Graph has one node per component, keyed by the component's first member.
	// Node data is the sorted member list.
	Graph *Graph
	// Component maps each original node to its component key.
	Component map[string]string
}

// Members returns the members of the component with the given key.
func (c *Condensation) Members(key string) []string {
	node, ok := c.Graph.GetNode(key)
	if !ok {
		return nil
	}
	return slices.Clone(node.Data.([]string))
}

// Condense builds the condensation of g.
func (g *Graph) Condense() *Condensation {
	c := &Condensation{
		Graph:     NewGraph(),
		Component: make(map[string]string),
	}
	for _, members := range g.StronglyConnected() {
		key := members[0]
		c.Graph.AddNode(key, members)
		for _, m := range members {
			c.Component[m] = key
		}
	}
	for _, id := range g.ids() {
		for _, child := range g.edges[id] {
			from, to := c.Component[id], c.Component[child]
			if from != to {
				_ = c.Graph.AddEdge(from, to)
			}
		}
	}
	return c
}

// OrderedComponents returns component keys by depth, ties broken by key.
func (c *Condensation) OrderedComponents() []string {
	// The condensation is acyclic by construction.
	levels, _ := c.Graph.ExecutionLevels()
	var order []string
	for _, level := range levels {
		order = append(order, level...)
	}
	return order
}
