package parser

import (
	"makerworld-stats/internal/snapshot"
	"makerworld-stats/lib/htmlutil"
	"net/url"
	"regexp"
	"sort"
	"strconv"
)

var modelPathRegex = regexp.MustCompile(`^(?:https?://(?:www\.)?makerworld\.com)?(?:/[a-z]{2}(?:-[A-Za-z]{2})?)?/models/(\d+)(?:-([^/?#]+))?/?(?:[?#].*)?$`)

// ParseModelRef extracts a model reference from a model page link.
func ParseModelRef(href string) (snapshot.ModelRef, bool) {
	match := modelPathRegex.FindStringSubmatch(href)
	if match == nil {
		return snapshot.ModelRef{}, false
	}
	id, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil || id <= 0 {
		return snapshot.ModelRef{}, false
	}
	// links carry the escaped slug, refs keep it raw
	slug, err := url.PathUnescape(match[2])
	if err != nil {
		slug = match[2]
	}
	return snapshot.ModelRef{ID: id, Slug: slug}, true
}

// ParseModelRefs returns the union of the model links on an upload page and
// the model objects in its page data, deduplicated by id and sorted by id.
func ParseModelRefs(raw []byte) ([]snapshot.ModelRef, error) {
	doc, err := loadDocument(raw)
	if err != nil {
		return nil, &ParseError{Page: "upload", Err: err}
	}

	found := map[int64]snapshot.ModelRef{}
	merge := func(ref snapshot.ModelRef) {
		existing, ok := found[ref.ID]
		if !ok {
			found[ref.ID] = ref
			return
		}
		if existing.Slug == "" {
			existing.Slug = ref.Slug
		}
		if existing.Title == "" {
			existing.Title = ref.Title
		}
		found[ref.ID] = existing
	}

	data, dataErr := nextData(doc)
	if dataErr == nil {
		data.walk(func(obj node) {
			id, ok := obj.key("id").integer()
			if !ok || id <= 0 {
				return
			}
			slug, _ := obj.key("slug").str()
			if slug == "" {
				return
			}
			title, _ := obj.key("title").str()
			merge(snapshot.ModelRef{ID: id, Slug: slug, Title: title})
		})
	}

	anchors := htmlutil.GetAnchors(nil, doc.Find("a[href]"))
	for _, a := range anchors {
		ref, ok := ParseModelRef(a.Href)
		if ok {
			merge(ref)
		}
	}

	if dataErr != nil && len(found) == 0 {
		return nil, &ParseError{
			Page:     "upload",
			Sections: []snapshot.Section{snapshot.SectionModels},
			Err:      ErrNoModelRefs,
		}
	}

	refs := make([]snapshot.ModelRef, 0, len(found))
	for _, ref := range found {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].ID < refs[j].ID
	})
	return refs, nil
}
