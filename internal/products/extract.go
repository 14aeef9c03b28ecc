// Package products extracts structured product recommendations embedded in
// free-form model output. Extraction is best-effort: malformed markup never
// fails the request, it degrades to a narrative-only result.
package products

import (
	"encoding/xml"
	"regexp"
	"strings"

	"github.com/klyra-ai/klyra-backend/internal/models"
)

// First well-formed <products> block, non-greedy, newlines allowed
var blockRe = regexp.MustCompile(`(?s)<products>.*?</products>`)

// Entities the parser accepts as-is; any other ampersand gets escaped
var ampRe = regexp.MustCompile(`&(?:amp|lt|gt|quot|apos|#[0-9]+|#x[0-9a-fA-F]+);|&`)

type xmlProduct struct {
	ID         string `xml:"id"`
	Name       string `xml:"name"`
	Highlights string `xml:"highlights"`
	Price      string `xml:"price"`
	ImageURL   string `xml:"image_url"`
	BuyLink    string `xml:"buy_link"`
}

type xmlProducts struct {
	XMLName  xml.Name     `xml:"products"`
	Products []xmlProduct `xml:"product"`
}

// Split separates the narrative text from the embedded product block. When no
// block is present, or the block fails to parse structurally, the whole input
// is returned as narrative with an empty product list.
func Split(raw string) (string, []models.Product) {
	match := blockRe.FindString(raw)
	if match == "" {
		return raw, nil
	}

	// Models routinely emit unescaped ampersands in names and prices;
	// escape them before structural parsing
	escaped := escapeBareAmpersands(match)

	var parsed xmlProducts
	if err := xml.Unmarshal([]byte(escaped), &parsed); err != nil {
		return raw, nil
	}

	out := make([]models.Product, 0, len(parsed.Products))
	for _, p := range parsed.Products {
		out = append(out, models.Product{
			ID:         strings.TrimSpace(p.ID),
			Name:       strings.TrimSpace(p.Name),
			Highlights: strings.TrimSpace(p.Highlights),
			Price:      strings.TrimSpace(p.Price),
			ImageURL:   strings.TrimSpace(p.ImageURL),
			BuyLink:    strings.TrimSpace(p.BuyLink),
		})
	}

	narrative := strings.TrimSpace(strings.Replace(raw, match, "", 1))
	return narrative, out
}

func escapeBareAmpersands(s string) string {
	return ampRe.ReplaceAllStringFunc(s, func(m string) string {
		if m == "&" {
			return "&amp;"
		}
		return m
	})
}
