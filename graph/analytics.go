package graph

import (
	"log/slog"
	"math"
	"sort"

	"github.com/jafffy/medical-kg/schema"
)

// centralitySampleThreshold is the node count above which betweenness and
// closeness switch from exact computation to source sampling.
const centralitySampleThreshold = 1000

// minCommunitySplit is the minimum component size eligible for further
// modularity-based splitting.
const minCommunitySplit = 6

// maxModularityNodes caps the node count for the modularity optimization;
// larger components are reported as a single community.
const maxModularityNodes = 200

// Centrality holds the per-node centrality scores for one measure, keyed
// by entity id.
type Centrality map[string]float64

// TopN returns the n highest-scoring entity ids in descending score order,
// ties broken by id.
func (c Centrality) TopN(n int) []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if c[ids[i]] != c[ids[j]] {
			return c[ids[i]] > c[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if n < len(ids) {
		ids = ids[:n]
	}
	return ids
}

// DegreeCentrality returns each node's degree normalized by the maximum
// possible degree.
func (g *KnowledgeGraph) DegreeCentrality() Centrality {
	out := make(Centrality, len(g.entities))
	n := len(g.entities)
	if n <= 1 {
		for id := range g.entities {
			out[id] = 0
		}
		return out
	}
	norm := float64(n - 1)
	for id := range g.entities {
		out[id] = float64(g.adj.degree(id)) / norm
	}
	return out
}

// BetweennessCentrality approximates betweenness via BFS shortest-path
// counting (Brandes). On graphs above the sampling threshold only a subset
// of source nodes is used and scores are scaled up accordingly.
func (g *KnowledgeGraph) BetweennessCentrality() Centrality {
	out := make(Centrality, len(g.entities))
	ids := g.sortedEntityIDs()
	for _, id := range ids {
		out[id] = 0
	}
	if len(ids) < 3 {
		return out
	}

	sources := ids
	scale := 1.0
	if len(ids) > centralitySampleThreshold {
		sources = sampleIDs(ids, centralitySampleThreshold)
		scale = float64(len(ids)) / float64(len(sources))
		slog.Debug("graph: sampling betweenness sources",
			"nodes", len(ids), "sources", len(sources))
	}

	for _, s := range sources {
		g.accumulateBrandes(s, out, scale)
	}

	// Undirected graphs count each path twice.
	for id := range out {
		out[id] /= 2
	}
	return out
}

// accumulateBrandes runs one Brandes source iteration, adding scaled
// dependency scores into acc.
func (g *KnowledgeGraph) accumulateBrandes(source string, acc Centrality, scale float64) {
	var stack []string
	preds := make(map[string][]string)
	sigma := map[string]float64{source: 1}
	dist := map[string]int{source: 0}

	queue := []string{source}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		stack = append(stack, v)
		for _, w := range g.adj.neighbors(v) {
			if _, seen := dist[w]; !seen {
				dist[w] = dist[v] + 1
				queue = append(queue, w)
			}
			if dist[w] == dist[v]+1 {
				sigma[w] += sigma[v]
				preds[w] = append(preds[w], v)
			}
		}
	}

	delta := make(map[string]float64)
	for i := len(stack) - 1; i >= 0; i-- {
		w := stack[i]
		for _, v := range preds[w] {
			delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
		}
		if w != source {
			acc[w] += delta[w] * scale
		}
	}
}

// ClosenessCentrality returns each node's closeness within its connected
// component, using the component-size correction so disconnected graphs
// stay comparable. Sampled graphs compute closeness only for the sampled
// nodes; the rest stay zero.
func (g *KnowledgeGraph) ClosenessCentrality() Centrality {
	out := make(Centrality, len(g.entities))
	ids := g.sortedEntityIDs()
	for _, id := range ids {
		out[id] = 0
	}
	if len(ids) < 2 {
		return out
	}

	targets := ids
	if len(ids) > centralitySampleThreshold {
		targets = sampleIDs(ids, centralitySampleThreshold)
	}

	n := float64(len(ids))
	for _, id := range targets {
		total := 0
		reached := 0
		dist := map[string]int{id: 0}
		queue := []string{id}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			for _, w := range g.adj.neighbors(v) {
				if _, seen := dist[w]; !seen {
					dist[w] = dist[v] + 1
					total += dist[w]
					reached++
					queue = append(queue, w)
				}
			}
		}
		if total > 0 {
			r := float64(reached)
			out[id] = (r / (n - 1)) * (r / float64(total))
		}
	}
	return out
}

// PageRank computes PageRank over the directed relation structure with the
// standard damping factor, treating dangling nodes as linking everywhere.
func (g *KnowledgeGraph) PageRank(iterations int, damping float64) Centrality {
	ids := g.sortedEntityIDs()
	n := len(ids)
	out := make(Centrality, n)
	if n == 0 {
		return out
	}
	if iterations <= 0 {
		iterations = 20
	}
	if damping <= 0 || damping >= 1 {
		damping = 0.85
	}

	rank := make(map[string]float64, n)
	for _, id := range ids {
		rank[id] = 1.0 / float64(n)
	}

	for iter := 0; iter < iterations; iter++ {
		next := make(map[string]float64, n)
		base := (1 - damping) / float64(n)
		dangling := 0.0
		for _, id := range ids {
			outDeg := len(g.adj.out[id])
			if outDeg == 0 {
				dangling += rank[id]
				continue
			}
			share := rank[id] / float64(outDeg)
			for to := range g.adj.out[id] {
				next[to] += damping * share
			}
		}
		danglingShare := damping * dangling / float64(n)
		for _, id := range ids {
			next[id] += base + danglingShare
		}
		rank = next
	}

	for id, v := range rank {
		out[id] = v
	}
	return out
}

// Community is one detected group of related entities.
type Community struct {
	Level     int      `json:"level"`
	EntityIDs []string `json:"entity_ids"`
}

// DetectCommunities finds community structure. Level-0 communities are
// connected components; components above the split threshold are refined
// by greedy modularity optimization into level-1 communities.
func (g *KnowledgeGraph) DetectCommunities() []Community {
	comps := g.adj.components()
	if len(comps) == 0 {
		return nil
	}

	totalWeight := 0.0
	for _, r := range g.relations {
		if g.hasEntity(r.SourceEntity) && g.hasEntity(r.TargetEntity) {
			totalWeight += relWeight(r)
		}
	}

	var out []Community
	for _, comp := range comps {
		out = append(out, Community{Level: 0, EntityIDs: comp})
		if len(comp) >= minCommunitySplit && len(comp) <= maxModularityNodes && totalWeight > 0 {
			for _, sub := range g.modularitySplit(comp, totalWeight) {
				out = append(out, Community{Level: 1, EntityIDs: sub})
			}
		}
	}

	slog.Info("graph: community detection complete",
		"components", len(comps), "communities", len(out))
	return out
}

// modularitySplit applies greedy modularity optimization (simplified
// Louvain) to split a connected component. Returns nothing when the split
// does not separate the component.
func (g *KnowledgeGraph) modularitySplit(comp []string, totalWeight float64) [][]string {
	n := len(comp)
	inComp := make(map[string]bool, n)
	for _, id := range comp {
		inComp[id] = true
	}

	// weight(v, w) summed over relations between the pair, both directions.
	weights := make(map[string]map[string]float64, n)
	addW := func(a, b string, w float64) {
		if weights[a] == nil {
			weights[a] = make(map[string]float64)
		}
		weights[a][b] += w
	}
	for _, r := range g.relations {
		if !inComp[r.SourceEntity] || !inComp[r.TargetEntity] || r.SourceEntity == r.TargetEntity {
			continue
		}
		w := relWeight(r)
		addW(r.SourceEntity, r.TargetEntity, w)
		addW(r.TargetEntity, r.SourceEntity, w)
	}

	community := make(map[string]int, n)
	strength := make(map[string]float64, n)
	for i, id := range comp {
		community[id] = i
		for _, w := range weights[id] {
			strength[id] += w
		}
	}

	m2 := 2 * totalWeight
	commStrength := make(map[int]float64, n)
	for _, id := range comp {
		commStrength[community[id]] += strength[id]
	}

	const maxPasses = 20
	for pass := 0; pass < maxPasses; pass++ {
		moved := false
		for _, id := range comp {
			commWeights := make(map[int]float64)
			for nbr, w := range weights[id] {
				commWeights[community[nbr]] += w
			}

			current := community[id]
			ki := strength[id]
			removeDelta := commWeights[current]/m2 - (commStrength[current]*ki)/(m2*m2)

			bestComm := current
			bestGain := 0.0
			for c, wic := range commWeights {
				if c == current {
					continue
				}
				gain := (wic/m2 - (commStrength[c]*ki)/(m2*m2)) - removeDelta
				if gain > bestGain {
					bestGain = gain
					bestComm = c
				}
			}

			if bestComm != current {
				commStrength[current] -= ki
				commStrength[bestComm] += ki
				community[id] = bestComm
				moved = true
			}
		}
		if !moved {
			break
		}
	}

	groups := make(map[int][]string)
	for _, id := range comp {
		groups[community[id]] = append(groups[community[id]], id)
	}
	if len(groups) <= 1 {
		return nil
	}

	result := make([][]string, 0, len(groups))
	for _, grp := range groups {
		sort.Strings(grp)
		result = append(result, grp)
	}
	sort.Slice(result, func(i, j int) bool {
		if len(result[i]) != len(result[j]) {
			return len(result[i]) > len(result[j])
		}
		return result[i][0] < result[j][0]
	})
	return result
}

// Statistics summarizes the graph's size and shape.
type Statistics struct {
	Entities      int                          `json:"entities"`
	Relations     int                          `json:"relations"`
	Notes         int                          `json:"notes"`
	EntityTypes   map[schema.EntityType]int    `json:"entity_types"`
	RelationTypes map[schema.RelationType]int  `json:"relation_types"`
	Categories    map[schema.SOAPCategory]int  `json:"soap_categories"`
	Density       float64                      `json:"density"`
	Components    int                          `json:"connected_components"`
	LargestComp   int                          `json:"largest_component"`
	AvgDegree     float64                      `json:"avg_degree"`
	MaxDegree     int                          `json:"max_degree"`
	Clustering    float64                      `json:"avg_clustering"`
	DegreeDist    map[int]int                  `json:"degree_distribution"`
}

// ComputeStatistics derives summary statistics over the current graph.
func (g *KnowledgeGraph) ComputeStatistics() Statistics {
	stats := Statistics{
		Entities:      len(g.entities),
		Relations:     len(g.relations),
		Notes:         len(g.notes),
		EntityTypes:   make(map[schema.EntityType]int),
		RelationTypes: make(map[schema.RelationType]int),
		Categories:    make(map[schema.SOAPCategory]int),
		DegreeDist:    make(map[int]int),
	}
	for _, e := range g.entities {
		stats.EntityTypes[e.Type]++
		stats.Categories[e.SOAPCategory]++
	}
	for _, r := range g.relations {
		stats.RelationTypes[r.Type]++
	}

	n := len(g.entities)
	if n > 1 {
		edges := countDistinctEdges(g.adj)
		stats.Density = 2 * float64(edges) / (float64(n) * float64(n-1))
	}

	totalDegree := 0
	for id := range g.entities {
		d := g.adj.degree(id)
		stats.DegreeDist[d]++
		totalDegree += d
		if d > stats.MaxDegree {
			stats.MaxDegree = d
		}
	}
	if n > 0 {
		stats.AvgDegree = float64(totalDegree) / float64(n)
	}

	comps := g.adj.components()
	stats.Components = len(comps)
	if len(comps) > 0 {
		stats.LargestComp = len(comps[0])
	}

	stats.Clustering = g.averageClustering()
	return stats
}

// averageClustering computes the mean local clustering coefficient over
// nodes with degree at least 2.
func (g *KnowledgeGraph) averageClustering() float64 {
	total := 0.0
	counted := 0
	for id := range g.entities {
		nbrs := g.adj.neighbors(id)
		k := len(nbrs)
		if k < 2 {
			continue
		}
		links := 0
		nbrSet := make(map[string]bool, k)
		for _, n := range nbrs {
			nbrSet[n] = true
		}
		for _, n := range nbrs {
			for _, nn := range g.adj.neighbors(n) {
				if nbrSet[nn] {
					links++
				}
			}
		}
		total += float64(links) / float64(k*(k-1))
		counted++
	}
	if counted == 0 {
		return 0
	}
	return total / float64(counted)
}

func countDistinctEdges(a *adjacency) int {
	seen := make(map[string]bool)
	for from, nbrs := range a.out {
		for to := range nbrs {
			lo, hi := from, to
			if lo > hi {
				lo, hi = hi, lo
			}
			seen[lo+"|"+hi] = true
		}
	}
	return len(seen)
}

func relWeight(r *schema.MedicalRelation) float64 {
	if r.Confidence > 0 {
		return r.Confidence
	}
	return 1
}

func (g *KnowledgeGraph) sortedEntityIDs() []string {
	ids := make([]string, 0, len(g.entities))
	for id := range g.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// sampleIDs picks an evenly spaced deterministic subset of size n.
func sampleIDs(ids []string, n int) []string {
	if len(ids) <= n {
		return ids
	}
	out := make([]string, 0, n)
	step := float64(len(ids)) / float64(n)
	for i := 0; i < n; i++ {
		out = append(out, ids[int(math.Floor(float64(i)*step))])
	}
	return out
}
