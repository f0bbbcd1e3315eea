// Package docs loads the static itinerary documents that ground answer generation.
//
// Each travel plan is backed by one reference document (Tokyo: PDF,
// Nagoya: plain text). Documents are static for the process lifetime, so
// extracted text is cached after the first load.
package docs

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/patrickmn/go-cache"
	"github.com/tripnavi/tripnavi/internal/models"
)

// planFiles maps each plan to its backing document inside the docs directory.
var planFiles = map[models.Plan]string{
	models.PlanTokyo:  "tokyo_plan.pdf",
	models.PlanNagoya: "nagoya_plan.txt",
}

// markupMarkers are the markdown artifacts stripped from document text
// before it is used as model context.
var markupMarkers = []string{"**", "*", "#"}

// Opts holds configuration options for the document store.
type Opts struct {
	Dir string
}

// Option defines a functional option for document store configuration.
type Option func(*Opts)

// WithDir sets the directory containing the plan documents.
func WithDir(dir string) Option {
	return func(o *Opts) { o.Dir = dir }
}

// Store loads and caches plan documents as plain text.
type Store struct {
	dir   string
	cache *cache.Cache
}

// Loader is the document access interface consumed by the bot.
type Loader interface {
	Load(plan models.Plan) (string, error)
}

// NewStore creates a document store reading from the configured directory.
func NewStore(opts ...Option) *Store {
	cfg := Opts{Dir: "docs"}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("docs.NewStore: document store created", "dir", cfg.Dir)
	return &Store{
		dir:   cfg.Dir,
		cache: cache.New(cache.NoExpiration, cache.NoExpiration),
	}
}

// Load returns the full text of the document backing the given plan,
// concatenating all pages/sections and stripping markup markers. Results
// are cached for the process lifetime.
func (s *Store) Load(plan models.Plan) (string, error) {
	if !models.IsValidPlan(plan) {
		return "", fmt.Errorf("load document: %w: %s", models.ErrUnknownPlan, plan)
	}

	if text, found := s.cache.Get(string(plan)); found {
		slog.Debug("docs.Load: cache hit", "plan", plan)
		return text.(string), nil
	}

	path := filepath.Join(s.dir, planFiles[plan])
	var text string
	var err error
	switch filepath.Ext(path) {
	case ".pdf":
		text, err = extractPDF(path)
	default:
		text, err = readTextFile(path)
	}
	if err != nil {
		slog.Error("docs.Load: failed to load document", "plan", plan, "path", path, "error", err)
		return "", fmt.Errorf("failed to load document for %s: %w", plan, err)
	}

	text = stripMarkup(text)
	s.cache.Set(string(plan), text, cache.NoExpiration)
	slog.Info("docs.Load: document loaded", "plan", plan, "path", path, "length", len(text))
	return text, nil
}

// extractPDF concatenates the plain text of every page in the PDF.
func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract PDF text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", fmt.Errorf("failed to read PDF text: %w", err)
	}
	return buf.String(), nil
}

func readTextFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read document file: %w", err)
	}
	return string(content), nil
}

// stripMarkup removes all occurrences of the markup markers from text.
func stripMarkup(text string) string {
	for _, marker := range markupMarkers {
		text = strings.ReplaceAll(text, marker, "")
	}
	return text
}
