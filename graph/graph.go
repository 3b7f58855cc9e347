// Package graph accumulates SOAP notes from many patients into a single
// medical knowledge graph and answers structural queries over it: lookups,
// traversal, centrality, community structure, and serialized exports.
package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jafffy/medical-kg/schema"
)

// ErrEntityNotFound reports a lookup against an entity id the graph does
// not contain.
var ErrEntityNotFound = errors.New("graph: entity not found")

// KnowledgeGraph is the in-memory accumulation of entities and relations
// across processed patients. It is not safe for concurrent mutation.
type KnowledgeGraph struct {
	entities  map[string]*schema.MedicalEntity
	relations map[string]*schema.MedicalRelation
	notes     map[string]*schema.SOAPNote

	// Secondary indexes, maintained on every mutation.
	byType     map[schema.EntityType]map[string]bool
	byCategory map[schema.SOAPCategory]map[string]bool
	adj        *adjacency
}

// New creates an empty knowledge graph.
func New() *KnowledgeGraph {
	return &KnowledgeGraph{
		entities:   make(map[string]*schema.MedicalEntity),
		relations:  make(map[string]*schema.MedicalRelation),
		notes:      make(map[string]*schema.SOAPNote),
		byType:     make(map[schema.EntityType]map[string]bool),
		byCategory: make(map[schema.SOAPCategory]map[string]bool),
		adj:        newAdjacency(),
	}
}

// AddNote merges a patient's SOAP note into the graph. Re-adding a note for
// the same patient replaces the stored note but entity and relation upserts
// remain additive. Returns the number of entities and relations actually
// added as new.
func (g *KnowledgeGraph) AddNote(note *schema.SOAPNote) (entsAdded, relsAdded int) {
	if note == nil {
		return 0, 0
	}
	entsAdded = g.AddEntities(note.AllEntities())
	relsAdded = g.AddRelations(note.Relations)
	g.notes[noteKey(note)] = note

	slog.Debug("graph: note merged",
		"patient_id", note.PatientID,
		"entities_added", entsAdded,
		"relations_added", relsAdded)
	return entsAdded, relsAdded
}

// AddEntities upserts entities by id. An existing id is overwritten with
// the new value; indexes are kept consistent.
func (g *KnowledgeGraph) AddEntities(entities []*schema.MedicalEntity) int {
	added := 0
	for _, e := range entities {
		if e == nil || e.ID == "" {
			continue
		}
		if old, ok := g.entities[e.ID]; ok {
			g.unindex(old)
		} else {
			added++
			g.adj.addNode(e.ID)
		}
		g.entities[e.ID] = e
		g.index(e)
	}
	return added
}

// AddRelations upserts relations by id, keeping the adjacency edge in
// step: re-adding an id drops the old edge before inserting the new one.
// A relation contributes an edge only when both endpoints already exist
// as nodes; dangling relations are stored but produce no edge.
func (g *KnowledgeGraph) AddRelations(relations []*schema.MedicalRelation) int {
	added := 0
	for _, r := range relations {
		if r == nil || r.ID == "" {
			continue
		}
		if old, existed := g.relations[r.ID]; existed {
			g.adj.removeEdge(old.SourceEntity, old.TargetEntity, old.ID)
		} else {
			added++
		}
		g.relations[r.ID] = r
		if g.hasEntity(r.SourceEntity) && g.hasEntity(r.TargetEntity) {
			g.adj.addEdge(r.SourceEntity, r.TargetEntity, r.ID)
		}
	}
	return added
}

// Entity returns the entity with the given id.
func (g *KnowledgeGraph) Entity(id string) (*schema.MedicalEntity, bool) {
	e, ok := g.entities[id]
	return e, ok
}

// Relation returns the relation with the given id.
func (g *KnowledgeGraph) Relation(id string) (*schema.MedicalRelation, bool) {
	r, ok := g.relations[id]
	return r, ok
}

// Note returns the stored SOAP note for a patient.
func (g *KnowledgeGraph) Note(patientID string) (*schema.SOAPNote, bool) {
	n, ok := g.notes[patientID]
	return n, ok
}

// EntityCount returns the number of entities in the graph.
func (g *KnowledgeGraph) EntityCount() int { return len(g.entities) }

// RelationCount returns the number of relations in the graph.
func (g *KnowledgeGraph) RelationCount() int { return len(g.relations) }

// NoteCount returns the number of stored patient notes.
func (g *KnowledgeGraph) NoteCount() int { return len(g.notes) }

// EntitiesByType returns all entities of the given type, ordered by id.
func (g *KnowledgeGraph) EntitiesByType(t schema.EntityType) []*schema.MedicalEntity {
	return g.collect(g.byType[t])
}

// EntitiesByCategory returns all entities in the given SOAP category,
// ordered by id.
func (g *KnowledgeGraph) EntitiesByCategory(c schema.SOAPCategory) []*schema.MedicalEntity {
	return g.collect(g.byCategory[c])
}

// FindEntities returns entities whose text contains the query,
// case-insensitively, ordered by id.
func (g *KnowledgeGraph) FindEntities(query string) []*schema.MedicalEntity {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	return g.Query(EntityQuery{Text: query})
}

// EntityQuery filters entities; zero-valued fields match everything and
// set fields combine with logical AND.
type EntityQuery struct {
	Text          string
	Type          schema.EntityType
	Category      schema.SOAPCategory
	MinConfidence float64
}

// Query scans the entity store with the given filters, ordered by id.
func (g *KnowledgeGraph) Query(q EntityQuery) []*schema.MedicalEntity {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	var out []*schema.MedicalEntity
	for _, e := range g.entities {
		if text != "" && !strings.Contains(strings.ToLower(e.Text), text) {
			continue
		}
		if q.Type != "" && e.Type != q.Type {
			continue
		}
		if q.Category != "" && e.SOAPCategory != q.Category {
			continue
		}
		if e.Confidence < q.MinConfidence {
			continue
		}
		out = append(out, e)
	}
	sortEntities(out)
	return out
}

// RelationsOf returns every relation that touches the entity, in either
// direction, ordered by id.
func (g *KnowledgeGraph) RelationsOf(entityID string) []*schema.MedicalRelation {
	var out []*schema.MedicalRelation
	for _, relID := range g.adj.edgesOf(entityID) {
		if r, ok := g.relations[relID]; ok {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Subgraph returns the entities within maxDepth undirected hops of the
// seed entity, together with all relations among them.
func (g *KnowledgeGraph) Subgraph(entityID string, maxDepth int) ([]*schema.MedicalEntity, []*schema.MedicalRelation, error) {
	if !g.hasEntity(entityID) {
		return nil, nil, fmt.Errorf("subgraph %q: %w", entityID, ErrEntityNotFound)
	}
	ents, rels := g.inducedSubgraph(g.adj.bfsWithin(entityID, maxDepth))
	return ents, rels, nil
}

// CategorySubgraph returns the entities in one SOAP category together with
// the relations whose endpoints both fall in that category.
func (g *KnowledgeGraph) CategorySubgraph(c schema.SOAPCategory) ([]*schema.MedicalEntity, []*schema.MedicalRelation) {
	return g.inducedSubgraph(g.byCategory[c])
}

// TypeSubgraph returns the entities of one type together with the
// relations whose endpoints are both of that type.
func (g *KnowledgeGraph) TypeSubgraph(t schema.EntityType) ([]*schema.MedicalEntity, []*schema.MedicalRelation) {
	return g.inducedSubgraph(g.byType[t])
}

// inducedSubgraph resolves an id set to its entities plus the relations
// with both endpoints inside the set, both ordered by id.
func (g *KnowledgeGraph) inducedSubgraph(ids map[string]bool) ([]*schema.MedicalEntity, []*schema.MedicalRelation) {
	ents := g.collect(ids)
	var rels []*schema.MedicalRelation
	for _, r := range g.relations {
		if ids[r.SourceEntity] && ids[r.TargetEntity] {
			rels = append(rels, r)
		}
	}
	sort.Slice(rels, func(i, j int) bool { return rels[i].ID < rels[j].ID })
	return ents, rels
}

// PatientSubgraph returns the entities and relations contributed by one
// patient's note.
func (g *KnowledgeGraph) PatientSubgraph(patientID string) ([]*schema.MedicalEntity, []*schema.MedicalRelation, error) {
	note, ok := g.notes[patientID]
	if !ok {
		return nil, nil, fmt.Errorf("patient subgraph: unknown patient %q", patientID)
	}
	return note.AllEntities(), note.Relations, nil
}

// RelatedEntities returns the entities connected to the given entity by
// relations of the listed types; with no types listed, every relation
// counts. Results are ordered by id.
func (g *KnowledgeGraph) RelatedEntities(entityID string, types ...schema.RelationType) []*schema.MedicalEntity {
	wanted := make(map[schema.RelationType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	seen := make(map[string]bool)
	var out []*schema.MedicalEntity
	for _, r := range g.RelationsOf(entityID) {
		if len(wanted) > 0 && !wanted[r.Type] {
			continue
		}
		other := r.TargetEntity
		if other == entityID {
			other = r.SourceEntity
		}
		if seen[other] {
			continue
		}
		seen[other] = true
		if e, ok := g.entities[other]; ok {
			out = append(out, e)
		}
	}
	sortEntities(out)
	return out
}

// Neighbors returns the entities directly connected to the given entity,
// in either direction, ordered by id.
func (g *KnowledgeGraph) Neighbors(entityID string) []*schema.MedicalEntity {
	var out []*schema.MedicalEntity
	for _, id := range g.adj.neighbors(entityID) {
		if e, ok := g.entities[id]; ok {
			out = append(out, e)
		}
	}
	sortEntities(out)
	return out
}

// ShortestPath returns the entity ids along a shortest undirected path
// between two entities, endpoints included. Returns an error when either
// endpoint is unknown or no path exists.
func (g *KnowledgeGraph) ShortestPath(fromID, toID string) ([]string, error) {
	if !g.hasEntity(fromID) {
		return nil, fmt.Errorf("shortest path %q: %w", fromID, ErrEntityNotFound)
	}
	if !g.hasEntity(toID) {
		return nil, fmt.Errorf("shortest path %q: %w", toID, ErrEntityNotFound)
	}
	path := g.adj.shortestPath(fromID, toID)
	if path == nil {
		return nil, fmt.Errorf("shortest path: no path between %q and %q", fromID, toID)
	}
	return path, nil
}

// Validate checks internal consistency: every adjacency edge must map to a
// stored relation whose endpoints exist. Returns the list of problems
// found, empty when the graph is consistent.
func (g *KnowledgeGraph) Validate() []string {
	var problems []string
	for id, r := range g.relations {
		if !g.hasEntity(r.SourceEntity) {
			problems = append(problems, fmt.Sprintf("relation %s: missing source entity %s", id, r.SourceEntity))
		}
		if !g.hasEntity(r.TargetEntity) {
			problems = append(problems, fmt.Sprintf("relation %s: missing target entity %s", id, r.TargetEntity))
		}
	}
	for _, relID := range g.adj.allEdgeIDs() {
		if _, ok := g.relations[relID]; !ok {
			problems = append(problems, fmt.Sprintf("adjacency references unknown relation %s", relID))
		}
	}
	sort.Strings(problems)
	return problems
}

func (g *KnowledgeGraph) hasEntity(id string) bool {
	_, ok := g.entities[id]
	return ok
}

func (g *KnowledgeGraph) index(e *schema.MedicalEntity) {
	if g.byType[e.Type] == nil {
		g.byType[e.Type] = make(map[string]bool)
	}
	g.byType[e.Type][e.ID] = true
	if g.byCategory[e.SOAPCategory] == nil {
		g.byCategory[e.SOAPCategory] = make(map[string]bool)
	}
	g.byCategory[e.SOAPCategory][e.ID] = true
}

func (g *KnowledgeGraph) unindex(e *schema.MedicalEntity) {
	delete(g.byType[e.Type], e.ID)
	delete(g.byCategory[e.SOAPCategory], e.ID)
}

func (g *KnowledgeGraph) collect(ids map[string]bool) []*schema.MedicalEntity {
	out := make([]*schema.MedicalEntity, 0, len(ids))
	for id := range ids {
		if e, ok := g.entities[id]; ok {
			out = append(out, e)
		}
	}
	sortEntities(out)
	return out
}

func sortEntities(ents []*schema.MedicalEntity) {
	sort.Slice(ents, func(i, j int) bool { return ents[i].ID < ents[j].ID })
}

func noteKey(n *schema.SOAPNote) string {
	return n.PatientID
}
