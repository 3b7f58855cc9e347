// Package medicalkg builds medical knowledge graphs from clinical patient
// data. Each patient's record is rendered to clinical text, run through
// entity extraction, SOAP categorization, and relationship extraction, and
// the resulting note is merged into a shared knowledge graph that supports
// traversal, centrality, community, and export queries.
package medicalkg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jafffy/medical-kg/checkpoint"
	"github.com/jafffy/medical-kg/graph"
	"github.com/jafffy/medical-kg/llm"
	"github.com/jafffy/medical-kg/loader"
	"github.com/jafffy/medical-kg/ner"
	"github.com/jafffy/medical-kg/relation"
	"github.com/jafffy/medical-kg/schema"
	"github.com/jafffy/medical-kg/soap"
)

// Pipeline wires the extraction stages together and accumulates results
// into a knowledge graph.
type Pipeline struct {
	cfg Config

	client      *llm.MedicalClient
	extractor   *ner.Extractor
	categorizer *soap.Categorizer
	relations   *relation.Extractor

	graph     *graph.KnowledgeGraph
	processed int
}

// NewPipeline creates a pipeline from configuration.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client := llm.NewMedicalClient(llm.NewOpenRouter(cfg.LLM))
	if cfg.UseLLM && !client.Available() {
		slog.Info("pipeline: no LLM credentials, running rule-based only")
	}

	return &Pipeline{
		cfg:         cfg,
		client:      client,
		extractor:   ner.New(client),
		categorizer: soap.New(client),
		relations:   relation.New(client),
		graph:       graph.New(),
	}, nil
}

// Graph returns the accumulated knowledge graph.
func (p *Pipeline) Graph() *graph.KnowledgeGraph { return p.graph }

// Processed returns the number of patients processed so far, including any
// restored from a checkpoint.
func (p *Pipeline) Processed() int { return p.processed }

// useLLM reports whether LLM extraction should be attempted.
func (p *Pipeline) useLLM() bool {
	return p.cfg.UseLLM && p.client.Available()
}

// ProcessText runs the full extraction pipeline over one clinical text and
// merges the resulting note into the graph. Blank text is an error;
// callers iterating over noisy records should skip those rows instead.
func (p *Pipeline) ProcessText(ctx context.Context, patientID, admissionID, text string) (*schema.SOAPNote, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	entities, err := p.extractor.Extract(ctx, text, p.useLLM())
	if err != nil {
		return nil, fmt.Errorf("extracting entities for patient %s: %w", patientID, err)
	}

	p.categorizer.Categorize(ctx, text, entities, p.useLLM())
	relations := p.relations.Extract(ctx, text, entities, p.useLLM())

	note := soap.Structure(patientID, admissionID, entities, relations)
	entsAdded, relsAdded := p.graph.AddNote(note)
	p.processed++

	slog.Info("pipeline: patient processed",
		"patient_id", patientID,
		"entities", len(entities),
		"relations", len(relations),
		"graph_entities_added", entsAdded,
		"graph_relations_added", relsAdded)
	return note, nil
}

// ProcessPatient renders a loaded patient record to clinical text and
// processes it.
func (p *Pipeline) ProcessPatient(ctx context.Context, ds *loader.Dataset, rec *loader.PatientRecord) (*schema.SOAPNote, error) {
	text := ds.ClinicalText(rec)
	if text == "" {
		return nil, fmt.Errorf("patient %s: %w", rec.PatientID, ErrEmptyText)
	}
	return p.ProcessText(ctx, rec.PatientID, rec.AdmissionID(), text)
}

// RunReport summarizes a dataset run.
type RunReport struct {
	Processed int
	Skipped   int
	Failed    []string
	Elapsed   time.Duration
}

// Run processes every patient in the configured data directory, resuming
// from the latest checkpoint when one exists. Individual patient failures
// are retried with backoff and then skipped; the run continues.
func (p *Pipeline) Run(ctx context.Context) (*RunReport, error) {
	if p.cfg.DataDir == "" {
		return nil, ErrNoDataset
	}

	ds, err := loader.LoadDir(p.cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("loading dataset: %w", err)
	}

	var ckpt *checkpoint.Store
	if p.cfg.CheckpointPath != "" {
		ckpt, err = checkpoint.Open(p.cfg.CheckpointPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCheckpointFailed, err)
		}
		defer ckpt.Close()
		p.restore(ctx, ckpt)
	}

	patients := ds.Patients()
	if p.cfg.MaxPatients > 0 && len(patients) > p.cfg.MaxPatients {
		patients = patients[:p.cfg.MaxPatients]
	}

	start := time.Now()
	report := &RunReport{}
	sinceCheckpoint := 0

	for i, rec := range patients {
		if i < p.processed {
			continue // already covered by the checkpoint
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if err := p.processWithRetry(ctx, ds, rec); err != nil {
			if errors.Is(err, ErrEmptyText) {
				report.Skipped++
				continue
			}
			slog.Warn("pipeline: patient failed after retries",
				"patient_id", rec.PatientID, "error", err)
			report.Failed = append(report.Failed, rec.PatientID)
			continue
		}
		report.Processed++
		sinceCheckpoint++

		if ckpt != nil && p.cfg.CheckpointEvery > 0 && sinceCheckpoint >= p.cfg.CheckpointEvery {
			if err := ckpt.Save(ctx, p.graph, p.processed); err != nil {
				slog.Warn("pipeline: checkpoint save failed", "error", err)
			}
			sinceCheckpoint = 0
		}
	}

	if ckpt != nil && sinceCheckpoint > 0 {
		if err := ckpt.Save(ctx, p.graph, p.processed); err != nil {
			slog.Warn("pipeline: final checkpoint save failed", "error", err)
		}
	}

	report.Elapsed = time.Since(start)
	slog.Info("pipeline: run complete",
		"processed", report.Processed,
		"skipped", report.Skipped,
		"failed", len(report.Failed),
		"elapsed", report.Elapsed)
	return report, nil
}

// processWithRetry retries transient failures with progressive backoff.
func (p *Pipeline) processWithRetry(ctx context.Context, ds *loader.Dataset, rec *loader.PatientRecord) error {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * time.Second
			slog.Warn("pipeline: retrying patient",
				"patient_id", rec.PatientID, "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		_, lastErr = p.ProcessPatient(ctx, ds, rec)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrEmptyText) || errors.Is(lastErr, context.Canceled) {
			return lastErr
		}
	}
	return lastErr
}

// restore loads the latest checkpoint if one exists. A missing checkpoint
// is a fresh start, not an error.
func (p *Pipeline) restore(ctx context.Context, ckpt *checkpoint.Store) {
	snap, err := ckpt.Load(ctx)
	if err != nil {
		if !errors.Is(err, checkpoint.ErrNotFound) {
			slog.Warn("pipeline: checkpoint load failed, starting fresh", "error", err)
		}
		return
	}
	p.graph = snap.Graph
	p.processed = snap.ProcessedCount
	slog.Info("pipeline: resumed from checkpoint",
		"processed", snap.ProcessedCount,
		"entities", p.graph.EntityCount(),
		"saved_at", snap.CreatedAt)
}

// Note returns the stored SOAP note for a patient.
func (p *Pipeline) Note(patientID string) (*schema.SOAPNote, error) {
	note, ok := p.graph.Note(patientID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPatientNotFound, patientID)
	}
	return note, nil
}
