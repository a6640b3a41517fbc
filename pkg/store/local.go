package store

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/allionai/allion/internal/models"
	"github.com/allionai/allion/internal/types"
)

const indexFileName = "index.json"

// Record is one embedded chunk persisted in the local index.
type Record struct {
	DocID     string                 `json:"doc_id"`
	Source    string                 `json:"source"`
	Title     string                 `json:"title"`
	Page      int                    `json:"page"`
	ChunkID   int                    `json:"chunk_id"`
	ChunkHash string                 `json:"chunk_hash,omitempty"`
	Text      string                 `json:"text"`
	Vector    []float32              `json:"vector"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type IndexMeta struct {
	IndexVersion int       `json:"index_version"`
	EmbedModel   string    `json:"embed_model"`
	EmbedDim     int       `json:"embed_dim"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type index struct {
	Meta    IndexMeta `json:"meta"`
	Records []Record  `json:"records"`
}

type LocalStoreConfig struct {
	// Dir is the vector store directory. Deleting it and re-running ingestion
	// rebuilds the index from scratch.
	Dir        string
	EmbedModel string
	SearchK    int
	MinScore   float64
	BatchSize  int
	Embedder   types.Embedder
}

// LocalStore is a directory-persisted vector index with cosine search.
type LocalStore struct {
	config LocalStoreConfig

	mu  sync.RWMutex
	idx index
}

func NewLocalWithConfig(config LocalStoreConfig) (*LocalStore, error) {
	if config.Dir == "" {
		config.Dir = "vectorstore_multi_pdf"
	}
	if config.SearchK == 0 {
		config.SearchK = 3
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.Embedder == nil {
		return nil, fmt.Errorf("local store requires an embedder")
	}

	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	ls := &LocalStore{config: config}
	if err := ls.load(); err != nil {
		return nil, err
	}

	return ls, nil
}

func (ls *LocalStore) indexPath() string {
	return filepath.Join(ls.config.Dir, indexFileName)
}

func (ls *LocalStore) load() error {
	data, err := os.ReadFile(ls.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			ls.idx = index{Meta: IndexMeta{
				IndexVersion: 1,
				EmbedModel:   ls.config.EmbedModel,
				CreatedAt:    time.Now(),
			}}
			return nil
		}
		return fmt.Errorf("failed to read index: %w", err)
	}

	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("failed to parse index: %w", err)
	}

	if idx.Meta.EmbedModel != "" && ls.config.EmbedModel != "" && idx.Meta.EmbedModel != ls.config.EmbedModel {
		return fmt.Errorf("index was built with embedding model %q, configured model is %q; delete %s and reingest",
			idx.Meta.EmbedModel, ls.config.EmbedModel, ls.config.Dir)
	}

	ls.idx = idx
	return nil
}

func (ls *LocalStore) save() error {
	ls.idx.Meta.UpdatedAt = time.Now()

	data, err := json.Marshal(ls.idx)
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}

	tmp := ls.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return os.Rename(tmp, ls.indexPath())
}

// Store embeds chunks and appends them to the index. Chunks whose hash is
// already present are skipped so re-ingesting an unchanged corpus is cheap.
func (ls *LocalStore) Store(ctx context.Context, docs []models.ProcessedDocument) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	existing := make(map[string]bool, len(ls.idx.Records))
	for _, r := range ls.idx.Records {
		existing[r.ChunkHash] = true
	}

	type pending struct {
		rec  Record
		text string
	}

	var toEmbed []pending
	for _, doc := range docs {
		for i, chunk := range doc.Chunks {
			sum := sha1.Sum([]byte(chunk))
			hash := fmt.Sprintf("%x", sum[:])
			if existing[hash] {
				continue
			}
			existing[hash] = true
			toEmbed = append(toEmbed, pending{
				rec: Record{
					DocID:     doc.ID,
					Source:    doc.Source,
					Title:     doc.Title,
					Page:      doc.Page,
					ChunkID:   i,
					ChunkHash: hash,
					Text:      chunk,
					Metadata:  doc.Metadata,
				},
				text: chunk,
			})
		}
	}

	for start := 0; start < len(toEmbed); start += ls.config.BatchSize {
		end := start + ls.config.BatchSize
		if end > len(toEmbed) {
			end = len(toEmbed)
		}
		batch := toEmbed[start:end]

		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.text
		}

		vectors, err := ls.config.Embedder.CreateEmbedding(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed chunks: %w", err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		for i := range batch {
			batch[i].rec.Vector = vectors[i]
			ls.idx.Records = append(ls.idx.Records, batch[i].rec)
		}

		if len(vectors) > 0 && ls.idx.Meta.EmbedDim == 0 {
			ls.idx.Meta.EmbedDim = len(vectors[0])
		}
	}

	sort.Slice(ls.idx.Records, func(i, j int) bool {
		a, b := ls.idx.Records[i], ls.idx.Records[j]
		if a.Source == b.Source {
			if a.Page == b.Page {
				return a.ChunkID < b.ChunkID
			}
			return a.Page < b.Page
		}
		return a.Source < b.Source
	})

	return ls.save()
}

// Query returns the limit most similar documents above the minimum score.
func (ls *LocalStore) Query(ctx context.Context, embedding []float32, limit int) ([]models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = ls.config.SearchK
	}

	ls.mu.RLock()
	defer ls.mu.RUnlock()

	type scored struct {
		rec   Record
		score float64
	}

	results := make([]scored, 0, len(ls.idx.Records))
	for _, r := range ls.idx.Records {
		s := CosineSimilarity(embedding, r.Vector)
		if s >= ls.config.MinScore {
			results = append(results, scored{rec: r, score: s})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > limit {
		results = results[:limit]
	}

	docs := make([]models.Document, len(results))
	for i, s := range results {
		docs[i] = models.Document{
			ID:       fmt.Sprintf("%s_%d", s.rec.DocID, s.rec.ChunkID),
			Source:   s.rec.Source,
			Title:    s.rec.Title,
			Content:  s.rec.Text,
			Page:     s.rec.Page,
			Metadata: s.rec.Metadata,
		}
	}

	return docs, nil
}

func (ls *LocalStore) Count(ctx context.Context) (int, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return len(ls.idx.Records), nil
}

// Reset deletes the store directory. The next ingestion run rebuilds it.
func (ls *LocalStore) Reset(ctx context.Context) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if err := os.RemoveAll(ls.config.Dir); err != nil {
		return fmt.Errorf("failed to remove store directory: %w", err)
	}
	if err := os.MkdirAll(ls.config.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to recreate store directory: %w", err)
	}

	ls.idx = index{Meta: IndexMeta{
		IndexVersion: 1,
		EmbedModel:   ls.config.EmbedModel,
		CreatedAt:    time.Now(),
	}}
	return nil
}

func (ls *LocalStore) Close() {}

// CosineSimilarity returns 0 on dimension mismatch or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		fa := float64(a[i])
		fb := float64(b[i])
		dot += fa * fb
		na += fa * fa
		nb += fb * fb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
