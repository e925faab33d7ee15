package sbwt

// Backward supports predecessor queries over a Graph: stepping to an
// arbitrary in-neighbor, and enumerating all in-neighbors of a node.
// All in-neighbors of a node share its (k-1)-prefix as their suffix,
// so queries scan a single suffix group located via the group-by-suffix
// index built at construction.
type Backward struct {
	g *Graph
}

// NewBackward builds a Backward view over g.
func NewBackward(g *Graph) *Backward {
	return &Backward{g: g}
}

// Label returns node's length-k label.
func (b *Backward) Label(node int64) string {
	return b.g.GetNodeLabel(node)
}

// Step returns an arbitrary in-neighbor of node. The root has no
// predecessor and steps to itself; every other node has at least one
// in-neighbor through the dummy closure.
func (b *Backward) Step(node int64) int64 {
	if node == b.g.rootID() {
		return node
	}
	neighbors := b.InNeighbors(node)
	if len(neighbors) == 0 {
		return -1
	}
	return neighbors[0]
}

// RealStep returns a non-dummy in-neighbor of node when one exists,
// falling back to whatever Step would return. A dummy row always sorts
// first within its suffix group (the sentinel precedes every base), so
// Step alone would shadow the real predecessor chain.
func (b *Backward) RealStep(node int64) int64 {
	if node == b.g.rootID() {
		return node
	}
	neighbors := b.InNeighbors(node)
	if len(neighbors) == 0 {
		return -1
	}
	for _, y := range neighbors {
		if !b.g.dummyMarks.Get(int(y)) {
			return y
		}
	}
	return neighbors[0]
}

// InNeighbors returns every node y with Forward(y, label[k-1]) ==
// node. Such y all share the (k-1)-suffix label[:k-1], which is a
// single suffix group, so the search is bounded by that group's size
// rather than the whole node set.
func (b *Backward) InNeighbors(node int64) []int64 {
	g := b.g
	label := g.labels[node]
	if len(label) < 2 {
		return nil
	}
	lastChar := label[len(label)-1]
	predSuffix := label[:len(label)-1]

	lo, hi, ok := g.GroupRange(predSuffix)
	if !ok {
		return nil
	}
	var out []int64
	for y := lo; y < hi; y++ {
		if g.Forward(int64(y), lastChar) == node {
			out = append(out, int64(y))
		}
	}
	return out
}
