package retrieval

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klyra-ai/klyra-backend/internal/config"
	"github.com/sirupsen/logrus"
)

// Document is one grounding passage from the corpus
type Document struct {
	ID       string
	Title    string
	Content  string
	FilePath string
}

// Retriever is the similarity-search contract the engine depends on
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]Document, error)
}

// VectorService indexes a directory of markdown documents and answers
// similarity queries with maximal-marginal-relevance selection, so the top-k
// grounding passages are relevant without being redundant.
type VectorService struct {
	documents  map[string]*Document
	docVectors map[string][]float32
	embedder   *tfidfEmbedder
	mu         sync.RWMutex

	directory string
	fetchK    int
	lambda    float64
	logger    *logrus.Logger
}

func NewVectorService(cfg *config.RetrievalConfig, logger *logrus.Logger) *VectorService {
	return &VectorService{
		documents:  make(map[string]*Document),
		docVectors: make(map[string][]float32),
		embedder:   newTFIDFEmbedder(),
		directory:  cfg.Directory,
		fetchK:     cfg.FetchK,
		lambda:     cfg.Lambda,
		logger:     logger,
	}
}

// Load reads all markdown files under the corpus directory and builds the
// document vectors
func (s *VectorService) Load(ctx context.Context) error {
	s.logger.WithField("dir", s.directory).Info("Loading retrieval corpus")

	if err := os.MkdirAll(s.directory, 0755); err != nil {
		return fmt.Errorf("failed to create corpus directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.documents = make(map[string]*Document)

	err := filepath.WalkDir(s.directory, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(path), ".md") {
			return nil
		}

		doc, err := s.loadDocument(path)
		if err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("Failed to load document")
			return nil // Continue with other files
		}

		s.documents[doc.ID] = doc
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk corpus directory: %w", err)
	}

	s.rebuildVectorsLocked()

	s.logger.WithField("count", len(s.documents)).Info("Retrieval corpus loaded")
	return nil
}

// Index adds documents directly, bypassing the filesystem. Used by tests and
// by callers that assemble the corpus programmatically.
func (s *VectorService) Index(docs []Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range docs {
		doc := docs[i]
		s.documents[doc.ID] = &doc
	}
	s.rebuildVectorsLocked()
}

func (s *VectorService) rebuildVectorsLocked() {
	all := make([]Document, 0, len(s.documents))
	for _, doc := range s.documents {
		all = append(all, *doc)
	}

	s.embedder.buildVocabulary(all)

	s.docVectors = make(map[string][]float32)
	for _, doc := range all {
		s.docVectors[doc.ID] = s.embedder.embed(doc.Content)
	}
}

func (s *VectorService) loadDocument(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	relPath, _ := filepath.Rel(s.directory, path)
	id := strings.TrimSuffix(relPath, filepath.Ext(relPath))
	id = strings.ReplaceAll(id, string(filepath.Separator), "_")

	doc := &Document{
		ID:       id,
		FilePath: path,
		Content:  string(content),
		Title:    documentTitle(string(content), path),
	}

	return doc, nil
}

// documentTitle takes the first level-1 markdown header, or falls back to the
// file name
func documentTitle(content, path string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	title = strings.ReplaceAll(title, "_", " ")
	title = strings.ReplaceAll(title, "-", " ")
	return title
}

type scoredDoc struct {
	doc   *Document
	score float32
}

// Search returns up to k grounding documents for the query, selected by
// maximal marginal relevance: candidates are the fetchK nearest neighbours,
// and each pick trades query relevance against similarity to the documents
// already picked (weight lambda).
func (s *VectorService) Search(ctx context.Context, query string, k int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.documents) == 0 {
		return nil, nil
	}

	queryVector := s.embedder.embed(query)

	candidates := make([]scoredDoc, 0, len(s.docVectors))
	for docID, docVector := range s.docVectors {
		doc, exists := s.documents[docID]
		if !exists {
			continue
		}
		score := cosineSimilarity(queryVector, docVector)
		if score > 0 {
			candidates = append(candidates, scoredDoc{doc: doc, score: score})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if len(candidates) > s.fetchK {
		candidates = candidates[:s.fetchK]
	}

	selected := s.maximalMarginalRelevance(queryVector, candidates, k)

	out := make([]Document, 0, len(selected))
	for _, c := range selected {
		out = append(out, *c.doc)
	}
	return out, nil
}

func (s *VectorService) maximalMarginalRelevance(queryVector []float32, candidates []scoredDoc, k int) []scoredDoc {
	var selected []scoredDoc

	remaining := make([]scoredDoc, len(candidates))
	copy(remaining, candidates)

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		bestScore := float32(-1 << 30)

		for i, c := range remaining {
			relevance := c.score

			var redundancy float32
			for _, sel := range selected {
				sim := cosineSimilarity(s.docVectors[c.doc.ID], s.docVectors[sel.doc.ID])
				if sim > redundancy {
					redundancy = sim
				}
			}

			mmr := float32(s.lambda)*relevance - float32(1-s.lambda)*redundancy
			if mmr > bestScore {
				bestScore = mmr
				bestIdx = i
			}
		}

		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}
