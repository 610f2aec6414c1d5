// Package ranking extracts and aggregates ordered response labels from
// free-form peer-review text produced by evaluator models.
package ranking

import (
	"regexp"
	"sort"
	"strings"
)

const sentinel = "FINAL RANKING:"

var (
	numberedRe = regexp.MustCompile(`(?m)^\s*\d+\.\s*(Response [A-Z])`)
	labelRe    = regexp.MustCompile(`Response [A-Z]`)
)

// ParseOrder extracts the ordered list of "Response X" labels from free-form
// evaluator text, per spec.md §4.3. It never returns an error: worst case,
// it returns an empty slice.
func ParseOrder(text string) []string {
	body := text
	if idx := strings.Index(text, sentinel); idx >= 0 {
		body = text[idx+len(sentinel):]
	}

	if numbered := numberedRe.FindAllStringSubmatch(body, -1); len(numbered) > 0 {
		out := make([]string, 0, len(numbered))
		for _, m := range numbered {
			out = append(out, m[1])
		}
		return out
	}

	matches := labelRe.FindAllString(body, -1)
	if matches == nil {
		return []string{}
	}
	return matches
}

// AggregateEntry is one model's aggregated ranking standing.
type AggregateEntry struct {
	Model          string  `json:"model"`
	AveragePosition float64 `json:"averagePosition"`
	Count          int     `json:"count"`
}

// Aggregate computes each model's average 1-based position across the
// evaluators that ranked it, per spec.md §4.3. The set of evaluatorOrders is
// order-independent: parsed-order entries referencing labels absent from
// labelToModel are skipped, and models never mentioned by any evaluator have
// no entry. The result is sorted ascending by average position; ties are
// broken by label (A < B < C < …), which is the order labels were assigned
// during stage 1 emission — a tie-break derived from labelToModel, not from
// the scan order of evaluatorOrders.
func Aggregate(evaluatorOrders [][]string, labelToModel map[string]string) []AggregateEntry {
	type acc struct {
		sum   int
		count int
	}
	accByModel := map[string]*acc{}
	modelToLabel := map[string]string{}
	for label, model := range labelToModel {
		modelToLabel[model] = label
	}

	for _, order := range evaluatorOrders {
		for pos, label := range order {
			model, ok := labelToModel[label]
			if !ok {
				continue
			}
			a, ok := accByModel[model]
			if !ok {
				a = &acc{}
				accByModel[model] = a
			}
			a.sum += pos + 1
			a.count++
		}
	}

	entries := make([]AggregateEntry, 0, len(accByModel))
	for model, a := range accByModel {
		avg := roundTo2(float64(a.sum) / float64(a.count))
		entries = append(entries, AggregateEntry{Model: model, AveragePosition: avg, Count: a.count})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].AveragePosition != entries[j].AveragePosition {
			return entries[i].AveragePosition < entries[j].AveragePosition
		}
		return modelToLabel[entries[i].Model] < modelToLabel[entries[j].Model]
	})
	return entries
}

func roundTo2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
