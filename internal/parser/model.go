package parser

import "makerworld-stats/internal/snapshot"

// ModelCandidate is the metrics of one model page.
type ModelCandidate struct {
	Ref       snapshot.ModelRef
	Title     string
	Likes     snapshot.Count
	Downloads snapshot.Count
	Prints    snapshot.Count
	Boosts    snapshot.Count
}

func (c ModelCandidate) Metric(category snapshot.Category) snapshot.Count {
	switch category {
	case snapshot.CategoryLiked:
		return c.Likes
	case snapshot.CategoryDownloaded:
		return c.Downloads
	case snapshot.CategoryPrinted:
		return c.Prints
	}
	return snapshot.Count{}
}

var modelMetricKeys = []string{"likeCount", "downloadCount", "printCount", "boost"}

func modelScore(obj node) int {
	score := 0
	if _, ok := obj.key("title").str(); ok {
		score += 3
	}
	if _, ok := obj.key("slug").str(); ok {
		score += 2
	}
	_, hasID := obj.key("id").integer()
	_, hasModelID := obj.key("modelId").integer()
	if hasID || hasModelID {
		score += 2
	}
	for _, k := range modelMetricKeys {
		if obj.has(k) {
			score++
		}
	}
	return score
}

// bestModelObject picks the highest scoring object, the first one wins ties.
func bestModelObject(data node) node {
	best := missing
	bestScore := 0
	data.walk(func(obj node) {
		score := modelScore(obj)
		if score > bestScore {
			best = obj
			bestScore = score
		}
	})
	return best
}

func hasModelFields(obj node) bool {
	if !obj.isObject() {
		return false
	}
	if _, ok := obj.key("title").str(); ok {
		return true
	}
	for _, k := range modelMetricKeys {
		if obj.has(k) {
			return true
		}
	}
	return false
}

// ParseModelDetail extracts the metrics of the model identified by ref from
// its detail page.
func ParseModelDetail(raw []byte, ref snapshot.ModelRef) (ModelCandidate, error) {
	doc, err := loadDocument(raw)
	if err != nil {
		return ModelCandidate{}, &ParseError{Page: "model", Err: err}
	}
	data, err := nextData(doc)
	if err != nil {
		return ModelCandidate{}, &ParseError{Page: "model", Err: err}
	}

	info := data.get("props.pageProps.design")
	if !hasModelFields(info) {
		info = bestModelObject(data)
	}
	if !info.exists {
		return ModelCandidate{}, &ParseError{Page: "model", Err: ErrNoModelData}
	}

	candidate := ModelCandidate{
		Ref:       ref,
		Title:     ref.Title,
		Likes:     info.key("likeCount").count(),
		Downloads: info.key("downloadCount").count(),
		Prints:    info.key("printCount").count(),
		Boosts:    info.key("boost").count(),
	}
	if title, ok := info.key("title").str(); ok && title != "" {
		candidate.Title = title
	}
	if candidate.Ref.Slug == "" {
		candidate.Ref.Slug, _ = info.key("slug").str()
	}
	return candidate, nil
}
