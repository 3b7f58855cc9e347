package graph

import (
	"testing"

	"github.com/jafffy/medical-kg/schema"
)

// starGraph builds a hub with n spokes.
func starGraph(t *testing.T, n int) *KnowledgeGraph {
	t.Helper()
	g := New()
	g.AddEntities([]*schema.MedicalEntity{ent("hub", "hub", schema.Disease)})
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		g.AddEntities([]*schema.MedicalEntity{ent(id, id, schema.Symptom)})
		g.AddRelations([]*schema.MedicalRelation{rel("r-"+id, "hub", id, schema.Causes)})
	}
	return g
}

func TestDegreeCentrality(t *testing.T) {
	g := starGraph(t, 3)
	c := g.DegreeCentrality()

	if c["hub"] != 1.0 {
		t.Errorf("hub degree centrality = %v, want 1.0", c["hub"])
	}
	if c["a"] != 1.0/3 {
		t.Errorf("spoke degree centrality = %v, want 1/3", c["a"])
	}
	if top := c.TopN(1); len(top) != 1 || top[0] != "hub" {
		t.Errorf("TopN(1) = %v, want [hub]", top)
	}
}

func TestBetweennessCentralityHubDominates(t *testing.T) {
	g := starGraph(t, 4)
	c := g.BetweennessCentrality()

	if c["hub"] <= 0 {
		t.Fatalf("hub betweenness = %v, want > 0", c["hub"])
	}
	for _, spoke := range []string{"a", "b", "c", "d"} {
		if c[spoke] != 0 {
			t.Errorf("spoke %s betweenness = %v, want 0", spoke, c[spoke])
		}
	}
}

func TestClosenessCentrality(t *testing.T) {
	g := starGraph(t, 3)
	c := g.ClosenessCentrality()
	if c["hub"] <= c["a"] {
		t.Errorf("hub closeness %v should exceed spoke closeness %v", c["hub"], c["a"])
	}
}

func TestPageRankSumsToOne(t *testing.T) {
	g := buildTestGraph(t)
	pr := g.PageRank(20, 0.85)

	sum := 0.0
	for _, v := range pr {
		sum += v
	}
	if sum < 0.99 || sum > 1.01 {
		t.Errorf("pagerank sum = %v, want ~1", sum)
	}
}

func TestDetectCommunitiesComponents(t *testing.T) {
	g := buildTestGraph(t) // e1-e2-e3 connected, e4 isolated
	comms := g.DetectCommunities()

	var level0 []Community
	for _, c := range comms {
		if c.Level == 0 {
			level0 = append(level0, c)
		}
	}
	if len(level0) != 2 {
		t.Fatalf("level-0 communities = %d, want 2", len(level0))
	}
	if len(level0[0].EntityIDs) != 3 {
		t.Errorf("largest component = %d members, want 3", len(level0[0].EntityIDs))
	}
	if len(level0[1].EntityIDs) != 1 || level0[1].EntityIDs[0] != "e4" {
		t.Errorf("isolated component = %v, want [e4]", level0[1].EntityIDs)
	}
}

func TestComputeStatistics(t *testing.T) {
	g := buildTestGraph(t)
	stats := g.ComputeStatistics()

	if stats.Entities != 4 || stats.Relations != 2 {
		t.Errorf("counts = %d/%d, want 4/2", stats.Entities, stats.Relations)
	}
	if stats.Components != 2 || stats.LargestComp != 3 {
		t.Errorf("components = %d largest %d, want 2/3", stats.Components, stats.LargestComp)
	}
	if stats.EntityTypes[schema.Medication] != 1 {
		t.Errorf("medication count = %d", stats.EntityTypes[schema.Medication])
	}
	if stats.RelationTypes[schema.Treats] != 1 {
		t.Errorf("treats count = %d", stats.RelationTypes[schema.Treats])
	}
	if stats.MaxDegree != 2 {
		t.Errorf("max degree = %d, want 2", stats.MaxDegree)
	}
	// 2 edges over C(4,2)=6 possible.
	if stats.Density < 0.33 || stats.Density > 0.34 {
		t.Errorf("density = %v, want ~1/3", stats.Density)
	}
	if stats.DegreeDist[0] != 1 || stats.DegreeDist[1] != 2 || stats.DegreeDist[2] != 1 {
		t.Errorf("degree distribution = %v", stats.DegreeDist)
	}
}

func TestCentralityEmptyGraph(t *testing.T) {
	g := New()
	if c := g.DegreeCentrality(); len(c) != 0 {
		t.Errorf("empty graph degree centrality = %v", c)
	}
	if c := g.PageRank(10, 0.85); len(c) != 0 {
		t.Errorf("empty graph pagerank = %v", c)
	}
	if comms := g.DetectCommunities(); comms != nil {
		t.Errorf("empty graph communities = %v", comms)
	}
}
