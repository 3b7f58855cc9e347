package graph

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jafffy/medical-kg/schema"
)

func TestJSONRoundTrip(t *testing.T) {
	g := buildTestGraph(t)
	g.AddNote(&schema.SOAPNote{PatientID: "p1"})

	var buf bytes.Buffer
	if err := g.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	restored, err := ReadJSON(&buf)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}

	if restored.EntityCount() != g.EntityCount() {
		t.Errorf("entities = %d, want %d", restored.EntityCount(), g.EntityCount())
	}
	if restored.RelationCount() != g.RelationCount() {
		t.Errorf("relations = %d, want %d", restored.RelationCount(), g.RelationCount())
	}
	if restored.NoteCount() != 1 {
		t.Errorf("notes = %d, want 1", restored.NoteCount())
	}

	// Adjacency must be rebuilt, not just the stores.
	path, err := restored.ShortestPath("e1", "e3")
	if err != nil {
		t.Fatalf("restored graph lost connectivity: %v", err)
	}
	if len(path) != 3 {
		t.Errorf("restored path = %v", path)
	}

	e, ok := restored.Entity("e1")
	if !ok || e.Text != "aspirin" || e.Type != schema.Medication {
		t.Errorf("restored entity e1 = %+v", e)
	}
}

func TestImportEntitiesBeforeRelations(t *testing.T) {
	exp := &Export{
		Entities: []*schema.MedicalEntity{
			ent("e1", "aspirin", schema.Medication),
			ent("e2", "stroke", schema.Disease),
		},
		Relations: []*schema.MedicalRelation{
			rel("r1", "e1", "e2", schema.Treats),
			rel("r2", "e1", "ghost", schema.Treats),
		},
	}
	g := Import(exp)

	if n := g.Neighbors("e1"); len(n) != 1 || n[0].ID != "e2" {
		t.Errorf("neighbors = %v, want [e2]", n)
	}
	if g.RelationCount() != 2 {
		t.Errorf("relations = %d, want 2 (dangling still stored)", g.RelationCount())
	}
}

func TestWriteGraphML(t *testing.T) {
	g := buildTestGraph(t)

	var buf bytes.Buffer
	if err := g.WriteGraphML(&buf); err != nil {
		t.Fatalf("WriteGraphML: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		`<?xml`,
		`graphml.graphdrawing.org`,
		`node id="e1"`,
		`edge id="r1" source="e1" target="e2"`,
		`>aspirin<`,
		`>treats<`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("GraphML output missing %q", want)
		}
	}
}

func TestWriteGEXF(t *testing.T) {
	g := buildTestGraph(t)

	var buf bytes.Buffer
	if err := g.WriteGEXF(&buf); err != nil {
		t.Fatalf("WriteGEXF: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		`gexf.net`,
		`label="aspirin"`,
		`source="e1" target="e2" label="treats"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("GEXF output missing %q", want)
		}
	}
}
