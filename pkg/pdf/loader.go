package pdf

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/allionai/allion/internal/models"
)

type LoaderConfig struct {
	// Directories to walk for *.pdf files.
	Dirs []string
	// OnProgress is invoked once per loaded file.
	OnProgress func(path string)
}

type Loader struct {
	config LoaderConfig
}

func NewWithConfig(config LoaderConfig) *Loader {
	return &Loader{config: config}
}

// ListFiles returns every PDF file under the configured directories.
func (l *Loader) ListFiles() ([]string, error) {
	var files []string

	for _, dir := range l.config.Dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if strings.EqualFold(filepath.Ext(path), ".pdf") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan directory %s: %w", dir, err)
		}
	}

	return files, nil
}

// Load extracts per-page documents from every PDF under the configured
// directories. A file that cannot be parsed is skipped, not fatal; the
// surrounding corpus is still useful.
func (l *Loader) Load() ([]models.Document, []error) {
	files, err := l.ListFiles()
	if err != nil {
		return nil, []error{err}
	}

	var docs []models.Document
	var errs []error

	for _, path := range files {
		fileDocs, err := l.LoadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", path, err))
			continue
		}
		docs = append(docs, fileDocs...)
		if l.config.OnProgress != nil {
			l.config.OnProgress(path)
		}
	}

	return docs, errs
}

// LoadFile extracts one document per page from a single PDF.
func (l *Loader) LoadFile(path string) ([]models.Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var docs []models.Document
	for pageNum := 1; pageNum <= r.NumPage(); pageNum++ {
		page := r.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Malformed page; keep the rest of the file
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		docs = append(docs, models.Document{
			ID:      uuid.NewString(),
			Source:  path,
			Title:   title,
			Content: text,
			Page:    pageNum,
			Metadata: map[string]interface{}{
				"file":  filepath.Base(path),
				"page":  pageNum,
				"pages": r.NumPage(),
			},
		})
	}

	return docs, nil
}
