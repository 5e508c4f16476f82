package keypath

import "strconv"

// NoParent marks the root node of an arena.
const NoParent = -1

// Node is one step of a keypath expansion. Nodes reference their parent by
// index into the owning arena.
type Node struct {
	Path   string
	Value  any
	Depth  int
	Parent int
}

// Arena holds every node produced while expanding a keypath over a record.
// Node 0 is always the record root. Nodes of one depth are stored
// contiguously in document order.
type Arena struct {
	nodes []Node
	depth int
}

// Expand walks record along the keypath and records every intermediate node.
func (k Keypath) Expand(record Record) *Arena {
	a := &Arena{
		nodes: make([]Node, 1, 8),
		depth: len(k.segments),
	}
	a.nodes[0] = Node{Path: RootPath, Value: record, Depth: 0, Parent: NoParent}

	frontierStart, frontierEnd := 0, 1
	for depth, seg := range k.segments {
		for id := frontierStart; id < frontierEnd; id++ {
			a.expandNode(id, depth+1, seg)
		}
		frontierStart, frontierEnd = frontierEnd, len(a.nodes)
		if frontierStart == frontierEnd {
			break
		}
	}

	return a
}

// Expand parses path and expands it over record. A malformed keypath yields
// an arena holding only the root and no matches.
func Expand(record Record, path string) *Arena {
	kp, err := Parse(path)
	if err != nil {
		return &Arena{
			nodes: []Node{{Path: RootPath, Value: record, Parent: NoParent}},
			depth: -1,
		}
	}
	return kp.Expand(record)
}

func (a *Arena) expandNode(id, depth int, seg Segment) {
	parent := a.nodes[id]

	switch seg.Kind {
	case SegmentKey:
		obj, ok := parent.Value.(map[string]any)
		if !ok {
			return
		}
		value, exists := obj[seg.Key]
		if !exists {
			return
		}
		a.push(id, depth, joinPath(parent.Path, seg.Key), value)

	case SegmentIndex:
		arr, ok := parent.Value.([]any)
		if !ok || seg.Index >= len(arr) {
			return
		}
		a.push(id, depth, joinPath(parent.Path, "["+strconv.Itoa(seg.Index)+"]"), arr[seg.Index])

	case SegmentWildcard:
		arr, ok := parent.Value.([]any)
		if !ok {
			return
		}
		for i, value := range arr {
			a.push(id, depth, joinPath(parent.Path, "["+strconv.Itoa(i)+"]"), value)
		}
	}
}

func (a *Arena) push(parent, depth int, path string, value any) {
	a.nodes = append(a.nodes, Node{Path: path, Value: value, Depth: depth, Parent: parent})
}

// Nodes returns the arena contents.
func (a *Arena) Nodes() []Node {
	return a.nodes
}

// Len returns the number of nodes, including the root.
func (a *Arena) Len() int {
	return len(a.nodes)
}

// Node returns the node with the given id.
func (a *Arena) Node(id int) Node {
	return a.nodes[id]
}

// Matches returns the nodes at full keypath depth whose value is not null.
func (a *Arena) Matches() []Match {
	if a.depth < 0 {
		return nil
	}

	var matches []Match
	for _, n := range a.nodes {
		if n.Depth != a.depth || n.Value == nil {
			continue
		}
		matches = append(matches, Match{Path: n.Path, Value: n.Value})
	}
	return matches
}

// Lineage returns the node ids from the root down to id.
func (a *Arena) Lineage(id int) []int {
	var chain []int
	for cur := id; cur != NoParent; cur = a.nodes[cur].Parent {
		chain = append(chain, cur)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}
