package graph

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"sort"

	"github.com/jafffy/medical-kg/schema"
)

// Export is the serializable snapshot of a knowledge graph.
type Export struct {
	Entities   []*schema.MedicalEntity   `json:"entities"`
	Relations  []*schema.MedicalRelation `json:"relations"`
	Notes      []*schema.SOAPNote        `json:"notes"`
	Statistics Statistics                `json:"statistics"`
}

// Snapshot captures the current graph as an Export with deterministic
// ordering.
func (g *KnowledgeGraph) Snapshot() *Export {
	exp := &Export{Statistics: g.ComputeStatistics()}

	for _, id := range g.sortedEntityIDs() {
		exp.Entities = append(exp.Entities, g.entities[id])
	}

	relIDs := make([]string, 0, len(g.relations))
	for id := range g.relations {
		relIDs = append(relIDs, id)
	}
	sort.Strings(relIDs)
	for _, id := range relIDs {
		exp.Relations = append(exp.Relations, g.relations[id])
	}

	noteIDs := make([]string, 0, len(g.notes))
	for id := range g.notes {
		noteIDs = append(noteIDs, id)
	}
	sort.Strings(noteIDs)
	for _, id := range noteIDs {
		exp.Notes = append(exp.Notes, g.notes[id])
	}
	return exp
}

// Import rebuilds a graph from a snapshot. Entities load before relations
// so every relation with surviving endpoints regains its adjacency edge.
func Import(exp *Export) *KnowledgeGraph {
	g := New()
	if exp == nil {
		return g
	}
	g.AddEntities(exp.Entities)
	g.AddRelations(exp.Relations)
	for _, n := range exp.Notes {
		if n != nil {
			g.notes[noteKey(n)] = n
		}
	}
	return g
}

// WriteJSON serializes the graph snapshot as indented JSON.
func (g *KnowledgeGraph) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(g.Snapshot()); err != nil {
		return fmt.Errorf("encoding graph JSON: %w", err)
	}
	return nil
}

// ReadJSON deserializes a snapshot written by WriteJSON into a new graph.
func ReadJSON(r io.Reader) (*KnowledgeGraph, error) {
	var exp Export
	if err := json.NewDecoder(r).Decode(&exp); err != nil {
		return nil, fmt.Errorf("decoding graph JSON: %w", err)
	}
	return Import(&exp), nil
}

// GraphML document model.

type graphmlDoc struct {
	XMLName xml.Name     `xml:"graphml"`
	XMLNS   string       `xml:"xmlns,attr"`
	Keys    []graphmlKey `xml:"key"`
	Graph   graphmlGraph `xml:"graph"`
}

type graphmlKey struct {
	ID   string `xml:"id,attr"`
	For  string `xml:"for,attr"`
	Name string `xml:"attr.name,attr"`
	Type string `xml:"attr.type,attr"`
}

type graphmlGraph struct {
	ID          string        `xml:"id,attr"`
	EdgeDefault string        `xml:"edgedefault,attr"`
	Nodes       []graphmlNode `xml:"node"`
	Edges       []graphmlEdge `xml:"edge"`
}

type graphmlNode struct {
	ID   string        `xml:"id,attr"`
	Data []graphmlData `xml:"data"`
}

type graphmlEdge struct {
	ID     string        `xml:"id,attr"`
	Source string        `xml:"source,attr"`
	Target string        `xml:"target,attr"`
	Data   []graphmlData `xml:"data"`
}

type graphmlData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

// WriteGraphML serializes the graph in GraphML format for use with tools
// like Gephi and NetworkX.
func (g *KnowledgeGraph) WriteGraphML(w io.Writer) error {
	doc := graphmlDoc{
		XMLNS: "http://graphml.graphdrawing.org/xmlns",
		Keys: []graphmlKey{
			{ID: "text", For: "node", Name: "text", Type: "string"},
			{ID: "entity_type", For: "node", Name: "entity_type", Type: "string"},
			{ID: "soap_category", For: "node", Name: "soap_category", Type: "string"},
			{ID: "confidence", For: "node", Name: "confidence", Type: "double"},
			{ID: "relation_type", For: "edge", Name: "relation_type", Type: "string"},
			{ID: "rel_confidence", For: "edge", Name: "confidence", Type: "double"},
		},
		Graph: graphmlGraph{ID: "medical-kg", EdgeDefault: "directed"},
	}

	snap := g.Snapshot()
	for _, e := range snap.Entities {
		doc.Graph.Nodes = append(doc.Graph.Nodes, graphmlNode{
			ID: e.ID,
			Data: []graphmlData{
				{Key: "text", Value: e.Text},
				{Key: "entity_type", Value: string(e.Type)},
				{Key: "soap_category", Value: string(e.SOAPCategory)},
				{Key: "confidence", Value: formatFloat(e.Confidence)},
			},
		})
	}
	for _, r := range snap.Relations {
		if !g.hasEntity(r.SourceEntity) || !g.hasEntity(r.TargetEntity) {
			continue
		}
		doc.Graph.Edges = append(doc.Graph.Edges, graphmlEdge{
			ID:     r.ID,
			Source: r.SourceEntity,
			Target: r.TargetEntity,
			Data: []graphmlData{
				{Key: "relation_type", Value: string(r.Type)},
				{Key: "rel_confidence", Value: formatFloat(r.Confidence)},
			},
		})
	}

	return writeXML(w, doc)
}

// GEXF document model.

type gexfDoc struct {
	XMLName xml.Name  `xml:"gexf"`
	XMLNS   string    `xml:"xmlns,attr"`
	Version string    `xml:"version,attr"`
	Graph   gexfGraph `xml:"graph"`
}

type gexfGraph struct {
	DefaultEdgeType string     `xml:"defaultedgetype,attr"`
	Nodes           gexfNodes  `xml:"nodes"`
	Edges           gexfEdges  `xml:"edges"`
}

type gexfNodes struct {
	Nodes []gexfNode `xml:"node"`
}

type gexfEdges struct {
	Edges []gexfEdge `xml:"edge"`
}

type gexfNode struct {
	ID    string `xml:"id,attr"`
	Label string `xml:"label,attr"`
}

type gexfEdge struct {
	ID     string  `xml:"id,attr"`
	Source string  `xml:"source,attr"`
	Target string  `xml:"target,attr"`
	Label  string  `xml:"label,attr"`
	Weight float64 `xml:"weight,attr"`
}

// WriteGEXF serializes the graph in GEXF format.
func (g *KnowledgeGraph) WriteGEXF(w io.Writer) error {
	doc := gexfDoc{
		XMLNS:   "http://www.gexf.net/1.2draft",
		Version: "1.2",
		Graph:   gexfGraph{DefaultEdgeType: "directed"},
	}

	snap := g.Snapshot()
	for _, e := range snap.Entities {
		doc.Graph.Nodes.Nodes = append(doc.Graph.Nodes.Nodes, gexfNode{
			ID:    e.ID,
			Label: e.Text,
		})
	}
	for _, r := range snap.Relations {
		if !g.hasEntity(r.SourceEntity) || !g.hasEntity(r.TargetEntity) {
			continue
		}
		doc.Graph.Edges.Edges = append(doc.Graph.Edges.Edges, gexfEdge{
			ID:     r.ID,
			Source: r.SourceEntity,
			Target: r.TargetEntity,
			Label:  string(r.Type),
			Weight: r.Confidence,
		})
	}

	return writeXML(w, doc)
}

func writeXML(w io.Writer, doc interface{}) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding XML: %w", err)
	}
	return enc.Close()
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}
