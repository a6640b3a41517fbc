package ingest

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/allionai/allion/internal/models"
	"github.com/allionai/allion/internal/types"
	"github.com/allionai/allion/pkg/pdf"
)

const manifestName = "manifest.json"

// Pipeline loads PDFs, chunks them, and writes the chunks into the vector
// store. A hash manifest next to the index skips re-ingestion when the source
// files have not changed.
type Pipeline struct {
	config    Config
	processor types.Processor
	store     types.VectorStore
}

type Config struct {
	PDFDir string
	// StateDir holds the manifest; usually the vector store directory.
	StateDir string
	// OnProgress is called once per stage with a short description and the
	// number of items completed so far.
	OnProgress func(stage string, done int)
}

func New(config Config, processor types.Processor, store types.VectorStore) *Pipeline {
	return &Pipeline{
		config:    config,
		processor: processor,
		store:     store,
	}
}

func (p *Pipeline) progress(stage string, done int) {
	if p.config.OnProgress != nil {
		p.config.OnProgress(stage, done)
	}
}

func (p *Pipeline) manifestPath() string {
	return filepath.Join(p.config.StateDir, manifestName)
}

// Stale reports whether the indexed content no longer matches the PDF
// directory.
func (p *Pipeline) Stale(ctx context.Context) (bool, error) {
	loader := pdf.NewWithConfig(pdf.LoaderConfig{Dirs: []string{p.config.PDFDir}})
	files, err := loader.ListFiles()
	if err != nil {
		return false, fmt.Errorf("list pdfs: %w", err)
	}

	current, err := pdf.BuildManifest(files)
	if err != nil {
		return false, fmt.Errorf("hash pdfs: %w", err)
	}

	stored, err := pdf.LoadManifest(p.manifestPath())
	if err != nil {
		return false, fmt.Errorf("load manifest: %w", err)
	}

	count, err := p.store.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("store count: %w", err)
	}

	return count == 0 || !current.Equal(stored), nil
}

// Reingest rebuilds the index when the sources changed or force is set.
// Returns the number of chunks stored.
func (p *Pipeline) Reingest(ctx context.Context, force bool) (int, error) {
	stale, err := p.Stale(ctx)
	if err != nil {
		return 0, err
	}
	if !stale && !force {
		count, err := p.store.Count(ctx)
		if err != nil {
			return 0, err
		}
		log.Printf("ingest: index up to date, %d chunks", count)
		return count, nil
	}

	if err := p.store.Reset(ctx); err != nil {
		return 0, fmt.Errorf("reset store: %w", err)
	}

	return p.Run(ctx)
}

// Run ingests the PDF directory into the store without staleness checks.
func (p *Pipeline) Run(ctx context.Context) (int, error) {
	loaded := 0
	loader := pdf.NewWithConfig(pdf.LoaderConfig{
		Dirs: []string{p.config.PDFDir},
		OnProgress: func(path string) {
			loaded++
			p.progress("loading", loaded)
		},
	})

	docs, loadErrs := loader.Load()
	for _, err := range loadErrs {
		log.Printf("ingest: %v", err)
	}
	if len(docs) == 0 {
		return 0, fmt.Errorf("no readable PDFs in %s", p.config.PDFDir)
	}

	var processed []models.ProcessedDocument
	for i, doc := range docs {
		chunked, err := p.processor.Process([]models.Document{doc})
		if err != nil {
			log.Printf("ingest: process %s page %d: %v", doc.Source, doc.Page, err)
			continue
		}
		processed = append(processed, chunked...)
		p.progress("processing", i+1)
	}

	total := 0
	for _, doc := range processed {
		total += len(doc.Chunks)
	}

	if err := p.store.Store(ctx, processed); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}
	p.progress("storing", total)

	files, err := loader.ListFiles()
	if err != nil {
		return total, fmt.Errorf("list pdfs: %w", err)
	}
	manifest, err := pdf.BuildManifest(files)
	if err != nil {
		return total, fmt.Errorf("hash pdfs: %w", err)
	}
	if err := manifest.Save(p.manifestPath()); err != nil {
		return total, fmt.Errorf("save manifest: %w", err)
	}

	return total, nil
}
