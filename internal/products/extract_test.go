package products

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wellFormedBlock = `<products>
    <product>
        <id>1</id>
        <name>COSRX Salicylic Acid Daily Gentle Cleanser 150ml</name>
        <highlights>Oil Controlling, Acne Controlling</highlights>
        <price>995TK</price>
        <image_url>https://cdn.example.com/cleanser.png</image_url>
        <buy_link>https://example.com/product/cleanser</buy_link>
    </product>
    <product>
        <id>2</id>
        <name>Aloe Vera Gel</name>
        <highlights>Soothing, Hydrating</highlights>
        <price>450TK</price>
        <image_url>https://cdn.example.com/aloe.png</image_url>
        <buy_link>https://example.com/product/aloe</buy_link>
    </product>
</products>`

func TestSplitNarrativeAndProducts(t *testing.T) {
	narrativeIn := "Dealing with acne can be frustrating! Here are a few things you can try.\n\n"
	raw := narrativeIn + wellFormedBlock

	narrative, prods := Split(raw)

	assert.Equal(t, strings.TrimSpace(narrativeIn), narrative)
	require.Len(t, prods, 2)

	assert.Equal(t, "1", prods[0].ID)
	assert.Equal(t, "COSRX Salicylic Acid Daily Gentle Cleanser 150ml", prods[0].Name)
	assert.Equal(t, "Oil Controlling, Acne Controlling", prods[0].Highlights)
	assert.Equal(t, "995TK", prods[0].Price)
	assert.Equal(t, "https://cdn.example.com/cleanser.png", prods[0].ImageURL)
	assert.Equal(t, "https://example.com/product/cleanser", prods[0].BuyLink)

	assert.Equal(t, "2", prods[1].ID)
	assert.Equal(t, "Aloe Vera Gel", prods[1].Name)
}

func TestSplitNoBlockReturnsInputUnchanged(t *testing.T) {
	raw := "Just wash your face twice a day with a mild cleanser."

	narrative, prods := Split(raw)

	assert.Equal(t, raw, narrative)
	assert.Empty(t, prods)
}

func TestSplitTextAfterBlockIsKept(t *testing.T) {
	raw := "Before.\n" + wellFormedBlock + "\nAfter."

	narrative, prods := Split(raw)

	assert.Contains(t, narrative, "Before.")
	assert.Contains(t, narrative, "After.")
	assert.NotContains(t, narrative, "<products>")
	assert.Len(t, prods, 2)
}

func TestSplitUnescapedAmpersandIsSalvaged(t *testing.T) {
	raw := `Some advice.
<products>
    <product>
        <id>1</id>
        <name>Nivea Soft & Smooth</name>
        <price>300TK</price>
    </product>
</products>`

	narrative, prods := Split(raw)

	require.Len(t, prods, 1)
	assert.Equal(t, "Nivea Soft & Smooth", prods[0].Name)
	assert.Equal(t, "Some advice.", narrative)
}

func TestSplitPreEscapedEntitiesSurvive(t *testing.T) {
	raw := `<products><product><id>1</id><name>Soft &amp; Smooth</name></product></products>`

	_, prods := Split(raw)

	require.Len(t, prods, 1)
	assert.Equal(t, "Soft & Smooth", prods[0].Name)
}

func TestSplitMissingFieldsYieldEmptyValues(t *testing.T) {
	raw := `<products><product><name>Mystery Cream</name></product></products>`

	narrative, prods := Split(raw)

	require.Len(t, prods, 1)
	assert.Empty(t, prods[0].ID)
	assert.Equal(t, "Mystery Cream", prods[0].Name)
	assert.Empty(t, prods[0].Price)
	assert.Empty(t, narrative)
}

func TestSplitMalformedBlockFallsBackToNarrative(t *testing.T) {
	raw := "Advice text.\n<products><product><id>1</id><name>Broken</products>"

	narrative, prods := Split(raw)

	assert.Equal(t, raw, narrative)
	assert.Empty(t, prods)
}

func TestSplitOnlyFirstBlockIsParsed(t *testing.T) {
	first := `<products><product><id>1</id><name>First</name></product></products>`
	second := `<products><product><id>2</id><name>Second</name></product></products>`
	raw := first + "\nmiddle\n" + second

	narrative, prods := Split(raw)

	require.Len(t, prods, 1)
	assert.Equal(t, "First", prods[0].Name)
	assert.Contains(t, narrative, "Second")
}
