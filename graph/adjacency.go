package graph

import "sort"

// adjacency is the compact undirected view of the graph used for traversal
// and analytics. Edges remember their relation id so traversal results can
// be resolved back to full relations.
type adjacency struct {
	nodes map[string]bool
	// out and in are keyed by node id; values map neighbor id to the
	// relation ids connecting the pair in that direction.
	out map[string]map[string][]string
	in  map[string]map[string][]string
}

func newAdjacency() *adjacency {
	return &adjacency{
		nodes: make(map[string]bool),
		out:   make(map[string]map[string][]string),
		in:    make(map[string]map[string][]string),
	}
}

func (a *adjacency) addNode(id string) {
	a.nodes[id] = true
}

func (a *adjacency) addEdge(from, to, relID string) {
	if !a.nodes[from] || !a.nodes[to] {
		return
	}
	if a.out[from] == nil {
		a.out[from] = make(map[string][]string)
	}
	a.out[from][to] = append(a.out[from][to], relID)
	if a.in[to] == nil {
		a.in[to] = make(map[string][]string)
	}
	a.in[to][from] = append(a.in[to][from], relID)
}

// removeEdge drops one relation's edge, if present. Missing nodes or an
// edge never inserted are no-ops.
func (a *adjacency) removeEdge(from, to, relID string) {
	removeRel(a.out[from], to, relID)
	removeRel(a.in[to], from, relID)
}

func removeRel(m map[string][]string, key, relID string) {
	ids := m[key]
	for i, id := range ids {
		if id == relID {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(m, key)
	} else {
		m[key] = ids
	}
}

// neighbors returns the sorted, deduplicated ids adjacent to a node in
// either direction.
func (a *adjacency) neighbors(id string) []string {
	seen := make(map[string]bool)
	for n := range a.out[id] {
		seen[n] = true
	}
	for n := range a.in[id] {
		seen[n] = true
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// edgesOf returns the relation ids of every edge touching a node.
func (a *adjacency) edgesOf(id string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, rels := range a.out[id] {
		for _, r := range rels {
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	for _, rels := range a.in[id] {
		for _, r := range rels {
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	sort.Strings(out)
	return out
}

func (a *adjacency) allEdgeIDs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, nbrs := range a.out {
		for _, rels := range nbrs {
			for _, r := range rels {
				if !seen[r] {
					seen[r] = true
					out = append(out, r)
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

// degree returns the undirected degree (distinct neighbors) of a node.
func (a *adjacency) degree(id string) int {
	return len(a.neighbors(id))
}

// bfsWithin returns the set of node ids reachable from start in at most
// maxDepth undirected hops, start included.
func (a *adjacency) bfsWithin(start string, maxDepth int) map[string]bool {
	visited := map[string]bool{start: true}
	if maxDepth <= 0 {
		return visited
	}
	queue := []string{start}
	for depth := 0; depth < maxDepth && len(queue) > 0; depth++ {
		var next []string
		for _, id := range queue {
			for _, n := range a.neighbors(id) {
				if !visited[n] {
					visited[n] = true
					next = append(next, n)
				}
			}
		}
		queue = next
	}
	return visited
}

// shortestPath returns the node ids along a shortest undirected path from
// one node to another, or nil when unreachable.
func (a *adjacency) shortestPath(from, to string) []string {
	if from == to {
		return []string{from}
	}
	prev := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, n := range a.neighbors(id) {
			if _, seen := prev[n]; seen {
				continue
			}
			prev[n] = id
			if n == to {
				return rebuildPath(prev, to)
			}
			queue = append(queue, n)
		}
	}
	return nil
}

func rebuildPath(prev map[string]string, to string) []string {
	var path []string
	for id := to; id != ""; id = prev[id] {
		path = append(path, id)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// components returns the connected components as slices of node ids, each
// sorted, largest first.
func (a *adjacency) components() [][]string {
	visited := make(map[string]bool, len(a.nodes))
	var comps [][]string

	ids := make([]string, 0, len(a.nodes))
	for id := range a.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, start := range ids {
		if visited[start] {
			continue
		}
		var comp []string
		queue := []string{start}
		visited[start] = true
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			comp = append(comp, id)
			for _, n := range a.neighbors(id) {
				if !visited[n] {
					visited[n] = true
					queue = append(queue, n)
				}
			}
		}
		sort.Strings(comp)
		comps = append(comps, comp)
	}

	sort.Slice(comps, func(i, j int) bool {
		if len(comps[i]) != len(comps[j]) {
			return len(comps[i]) > len(comps[j])
		}
		return comps[i][0] < comps[j][0]
	})
	return comps
}
