package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/goccy/go-json"
)

func loadDocument(raw []byte) (*goquery.Document, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errEmptyContent
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(raw))
}

// nextData decodes the json payload that next.js embeds in every page.
func nextData(doc *goquery.Document) (node, error) {
	script := doc.Find("script#__NEXT_DATA__").First()
	if script.Length() == 0 {
		return missing, ErrNoNextData
	}
	text := strings.TrimSpace(script.Text())
	if text == "" {
		return missing, ErrNoNextData
	}

	decoder := json.NewDecoder(strings.NewReader(text))
	decoder.UseNumber()
	var out any
	err := decoder.Decode(&out)
	if err != nil {
		return missing, fmt.Errorf("decode __NEXT_DATA__: %w", err)
	}
	return wrap(out), nil
}
