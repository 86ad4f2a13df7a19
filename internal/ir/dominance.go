package ir

// Dominance is the dominator information of a function's CFG, restricted
// to the nodes reachable from the entry. Slices are indexed by node ID.
type Dominance struct {
	Reachable []bool
	// Order lists reachable node IDs in reverse postorder.
	Order []int
	// Idom is the immediate dominator, -1 for the entry and for
	// unreachable nodes.
	Idom     []int
	Children [][]int
	Frontier [][]int
}

// ComputeDominance runs the Cooper-Harvey-Kennedy iteration over fn's
// nodes. fn must have an entry node.
func ComputeDominance(fn *Function) *Dominance {
	n := len(fn.Nodes)
	d := &Dominance{
		Reachable: make([]bool, n),
		Idom:      make([]int, n),
		Children:  make([][]int, n),
		Frontier:  make([][]int, n),
	}
	if n == 0 {
		return d
	}

	// postorder DFS from the entry
	var post []int
	var visit func(*Node)
	visit = func(x *Node) {
		d.Reachable[x.ID] = true
		for _, s := range x.Sons {
			if !d.Reachable[s.ID] {
				visit(s)
			}
		}
		post = append(post, x.ID)
	}
	visit(fn.Nodes[0])

	rpoIndex := make([]int, n)
	d.Order = make([]int, len(post))
	for i := range post {
		id := post[len(post)-1-i]
		d.Order[i] = id
		rpoIndex[id] = i
	}

	for i := range d.Idom {
		d.Idom[i] = -1
	}
	entry := fn.Nodes[0].ID
	d.Idom[entry] = entry

	intersect := func(a, b int) int {
		for a != b {
			for rpoIndex[a] > rpoIndex[b] {
				a = d.Idom[a]
			}
			for rpoIndex[b] > rpoIndex[a] {
				b = d.Idom[b]
			}
		}
		return a
	}

	for changed := true; changed; {
		changed = false
		for _, b := range d.Order[1:] {
			newIdom := -1
			for _, p := range fn.Nodes[b].Fathers {
				if !d.Reachable[p.ID] || d.Idom[p.ID] == -1 {
					continue
				}
				if newIdom == -1 {
					newIdom = p.ID
				} else {
					newIdom = intersect(p.ID, newIdom)
				}
			}
			if d.Idom[b] != newIdom {
				d.Idom[b] = newIdom
				changed = true
			}
		}
	}

	// Frontiers: walk up from each predecessor of a join node to its
	// immediate dominator.
	for _, b := range d.Order {
		preds := d.reachableFathers(fn.Nodes[b])
		if len(preds) < 2 {
			continue
		}
		for _, p := range preds {
			for runner := p.ID; runner != d.Idom[b]; runner = d.Idom[runner] {
				if !containsInt(d.Frontier[runner], b) {
					d.Frontier[runner] = append(d.Frontier[runner], b)
				}
				if runner == entry {
					break
				}
			}
		}
	}

	d.Idom[entry] = -1
	for id := 0; id < n; id++ {
		if p := d.Idom[id]; p >= 0 {
			d.Children[p] = append(d.Children[p], id)
		}
	}
	return d
}

func (d *Dominance) reachableFathers(n *Node) []*Node {
	var out []*Node
	for _, f := range n.Fathers {
		if d.Reachable[f.ID] {
			out = append(out, f)
		}
	}
	return out
}

// Dominates reports whether node a dominates node b.
func (d *Dominance) Dominates(a, b int) bool {
	if !d.Reachable[a] || !d.Reachable[b] {
		return false
	}
	for x := b; x != -1; x = d.Idom[x] {
		if x == a {
			return true
		}
	}
	return false
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
