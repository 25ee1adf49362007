package parser

import "makerworld-stats/internal/snapshot"

// SelectHighlights picks the top model per category. Each category is
// decided independently, ties go to the candidate scanned first and a
// candidate without a title or metric is skipped for that category.
func SelectHighlights(candidates []ModelCandidate) []snapshot.ModelHighlight {
	var out []snapshot.ModelHighlight
	for _, category := range snapshot.AllCategories {
		var best *ModelCandidate
		var bestValue int64
		for i := range candidates {
			c := &candidates[i]
			metric := c.Metric(category)
			if c.Title == "" || !metric.Known {
				continue
			}
			if best == nil || metric.Value > bestValue {
				best = c
				bestValue = metric.Value
			}
		}
		if best == nil {
			continue
		}
		out = append(out, snapshot.ModelHighlight{
			Category: category,
			ModelID:  best.Ref.ID,
			Slug:     best.Ref.Slug,
			URL:      best.Ref.URL(),
			Title:    best.Title,
			Count:    bestValue,
		})
	}
	return out
}
