package parser

import (
	"errors"
	"fmt"
	"makerworld-stats/internal/snapshot"
	"strings"
)

var (
	ErrNoNextData   = errors.New("__NEXT_DATA__ script not found")
	ErrNoUserInfo   = errors.New("props.pageProps.userInfo not found")
	ErrNoModelData  = errors.New("no model object found in page data")
	ErrNoModelRefs  = errors.New("upload page has neither model anchors nor page data")
	errEmptyContent = errors.New("empty content")
)

// ParseError reports structural drift in a page. Partial is true when other
// sections of the same page were still extracted.
type ParseError struct {
	Page     string
	Sections []snapshot.Section
	Partial  bool
	Err      error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "parse %s", e.Page)
	if len(e.Sections) > 0 {
		names := make([]string, len(e.Sections))
		for i, s := range e.Sections {
			names[i] = string(s)
		}
		fmt.Fprintf(&b, " (%s unavailable)", strings.Join(names, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %s", e.Err.Error())
	}
	return b.String()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
