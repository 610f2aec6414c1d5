package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseOrder_NumberedAfterSentinel(t *testing.T) {
	text := "Some reasoning here.\nFINAL RANKING:\n1. Response A\n2. Response B\n"
	assert.Equal(t, []string{"Response A", "Response B"}, ParseOrder(text))
}

func TestParseOrder_SentinelNoNumbering(t *testing.T) {
	text := "FINAL RANKING: Response B is best, then Response A."
	assert.Equal(t, []string{"Response B", "Response A"}, ParseOrder(text))
}

func TestParseOrder_NoSentinelPlainExtraction(t *testing.T) {
	text := "I think Response C then Response A then Response B."
	assert.Equal(t, []string{"Response C", "Response A", "Response B"}, ParseOrder(text))
}

func TestParseOrder_Empty(t *testing.T) {
	assert.Equal(t, []string{}, ParseOrder("no labels mentioned here"))
}

func TestParseOrder_CaseSensitive(t *testing.T) {
	text := "FINAL RANKING: response a is not a match, Response A is."
	assert.Equal(t, []string{"Response A"}, ParseOrder(text))
}

func TestParseOrder_SentinelIgnoresTextBefore(t *testing.T) {
	text := "Response Z mentioned before sentinel.\nFINAL RANKING:\n1. Response A\n"
	assert.Equal(t, []string{"Response A"}, ParseOrder(text))
}

func TestParseOrder_Idempotent(t *testing.T) {
	text := "FINAL RANKING:\n1. Response B\n2. Response A\n3. Response C\n"
	first := ParseOrder(text)
	second := ParseOrder(text)
	assert.Equal(t, first, second)
}

func TestAggregate_Example(t *testing.T) {
	labelToModel := map[string]string{"Response A": "M1", "Response B": "M2"}
	orders := [][]string{
		{"Response A", "Response B"},
		{"Response B", "Response A"},
	}
	got := Aggregate(orders, labelToModel)
	assert.Equal(t, []AggregateEntry{
		{Model: "M1", AveragePosition: 1.5, Count: 2},
		{Model: "M2", AveragePosition: 1.5, Count: 2},
	}, got)
}

func TestAggregate_UnknownLabelsSkipped(t *testing.T) {
	labelToModel := map[string]string{"Response A": "M1"}
	orders := [][]string{{"Response Z", "Response A"}}
	got := Aggregate(orders, labelToModel)
	assert.Equal(t, []AggregateEntry{{Model: "M1", AveragePosition: 2, Count: 1}}, got)
}

func TestAggregate_UnmentionedModelHasNoEntry(t *testing.T) {
	labelToModel := map[string]string{"Response A": "M1", "Response B": "M2"}
	orders := [][]string{{"Response A"}}
	got := Aggregate(orders, labelToModel)
	assert.Len(t, got, 1)
	assert.Equal(t, "M1", got[0].Model)
}

func TestAggregate_OrderIndependent(t *testing.T) {
	labelToModel := map[string]string{"Response A": "M1", "Response B": "M2", "Response C": "M3"}
	orders1 := [][]string{
		{"Response A", "Response B", "Response C"},
		{"Response C", "Response B", "Response A"},
	}
	orders2 := [][]string{orders1[1], orders1[0]}
	got1 := Aggregate(orders1, labelToModel)
	got2 := Aggregate(orders2, labelToModel)
	assert.ElementsMatch(t, got1, got2)
}
