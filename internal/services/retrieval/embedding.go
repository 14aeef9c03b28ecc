package retrieval

import (
	"math"
	"strings"
)

// tfidfEmbedder turns text into TF-IDF vectors over the corpus vocabulary.
// The corpus is small and local, so a full vector database is not needed; the
// retriever only requires a similarity signal good enough for grounding.
type tfidfEmbedder struct {
	vocabulary map[string]int
	idf        map[string]float64
}

func newTFIDFEmbedder() *tfidfEmbedder {
	return &tfidfEmbedder{
		vocabulary: make(map[string]int),
		idf:        make(map[string]float64),
	}
}

// buildVocabulary indexes the corpus and computes inverse document frequency
func (e *tfidfEmbedder) buildVocabulary(documents []Document) {
	e.vocabulary = make(map[string]int)
	e.idf = make(map[string]float64)

	df := make(map[string]int)
	totalDocs := len(documents)

	vocabIndex := 0
	for _, doc := range documents {
		tokens := tokenize(doc.Content)
		seen := make(map[string]bool)

		for _, token := range tokens {
			if _, exists := e.vocabulary[token]; !exists {
				e.vocabulary[token] = vocabIndex
				vocabIndex++
			}
			if !seen[token] {
				df[token]++
				seen[token] = true
			}
		}
	}

	for token, freq := range df {
		e.idf[token] = math.Log(float64(totalDocs) / float64(freq))
	}
}

// embed returns the TF-IDF vector for text
func (e *tfidfEmbedder) embed(text string) []float32 {
	tokens := tokenize(text)
	vector := make([]float32, len(e.vocabulary))

	tf := make(map[string]int)
	for _, token := range tokens {
		tf[token]++
	}

	for token, freq := range tf {
		if idx, exists := e.vocabulary[token]; exists {
			tfValue := float64(freq) / float64(len(tokens))
			vector[idx] = float32(tfValue * e.idf[token])
		}
	}

	return vector
}

// cosineSimilarity between two vectors of equal length
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float32
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}

func tokenize(text string) []string {
	text = strings.ToLower(text)

	replacer := strings.NewReplacer(
		".", " ", ",", " ", ";", " ", ":", " ",
		"!", " ", "?", " ", "(", " ", ")", " ",
		"[", " ", "]", " ", "{", " ", "}", " ",
		"\"", " ", "'", " ", "-", " ", "_", " ",
		"\n", " ", "\t", " ", "\r", " ",
	)
	text = replacer.Replace(text)

	words := strings.Fields(text)

	// Filter out short words and numbers
	var tokens []string
	for _, word := range words {
		if len(word) > 2 && !isNumber(word) {
			tokens = append(tokens, word)
		}
	}

	return tokens
}

func isNumber(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
