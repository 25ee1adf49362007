package coordinator

import (
	"context"
	"errors"
	"fmt"
	"makerworld-stats/internal/account"
	"makerworld-stats/internal/makerworld"
	"makerworld-stats/internal/parser"
	"makerworld-stats/internal/snapshot"
)

const (
	report_collect_upload = "collect.upload"
	report_collect_model  = "collect.model"
)

// aborts reports whether err must end the whole cycle rather than only
// the section it happened in.
func aborts(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	var authErr *makerworld.AuthError
	var rateErr *makerworld.RateLimitError
	return errors.As(err, &authErr) || errors.As(err, &rateErr)
}

// collect fetches and parses every page of one cycle into a snapshot that is
// not yet stamped. A non-nil warning means some sections are unavailable.
func (c *Coordinator) collect(ctx context.Context) (snapshot.Snapshot, *parser.ParseError, error) {
	settings, err := c.source.Load(ctx)
	if errors.Is(err, account.ErrNoUsername) {
		return snapshot.Snapshot{}, nil, &makerworld.AuthError{
			Reason: fmt.Sprintf("load account settings: %s", err.Error()),
		}
	}
	if err != nil {
		// an unreadable or malformed config is not a credential problem
		return snapshot.Snapshot{}, nil, fmt.Errorf("load account settings: %w", err)
	}
	creds := settings.Credentials

	profilePage, err := c.fetcher.FetchProfilePage(ctx, creds)
	if err != nil {
		return snapshot.Snapshot{}, nil, err
	}

	c.setState(StateParsing)
	profile := parser.ParseProfile(profilePage.Body)
	if !profile.Found {
		return snapshot.Snapshot{}, nil, profile.Err()
	}

	snap := snapshot.Snapshot{
		Stats:       profile.Stats,
		Badges:      profile.Badges,
		Permissions: profile.Permissions,
		Identity:    profile.Identity,
		Extras:      profile.Extras,
		Sections:    map[snapshot.Section]snapshot.SectionStatus{},
	}
	for section, status := range profile.Sections {
		snap.Sections[section] = status
	}

	c.setState(StateFetching)
	candidates, err := c.collectModels(ctx, settings, &snap)
	if err != nil {
		return snapshot.Snapshot{}, nil, err
	}

	c.setState(StateParsing)
	if snap.Section(snapshot.SectionModels).Available {
		snap.Highlights = parser.SelectHighlights(candidates)
		if snap.ScannedModels > 0 && len(candidates) == 0 {
			snap.Sections[snapshot.SectionHighlights] = snapshot.Unavailable("no model page could be read")
		} else {
			snap.Sections[snapshot.SectionHighlights] = snapshot.Available()
		}
	} else {
		snap.Sections[snapshot.SectionHighlights] = snapshot.Unavailable("model list unavailable")
	}

	unavailable := snap.UnavailableSections()
	if len(unavailable) == 0 {
		return snap, nil, nil
	}
	return snap, &parser.ParseError{
		Page:     "profile",
		Sections: unavailable,
		Partial:  true,
	}, nil
}

// collectModels fills the model sections of snap and returns the metrics of
// every model page that could be read.
func (c *Coordinator) collectModels(ctx context.Context, settings account.Settings, snap *snapshot.Snapshot) ([]parser.ModelCandidate, error) {
	creds := settings.Credentials

	uploadPage, err := c.fetcher.FetchUploadPage(ctx, creds)
	if err != nil {
		if aborts(ctx, err) {
			return nil, err
		}
		c.tel.ReportWarning(report_collect_upload, err)
		snap.Sections[snapshot.SectionModels] = snapshot.Unavailable(err.Error())
		snap.Warnings = append(snap.Warnings, fmt.Sprintf("upload page: %s", err.Error()))
		return nil, nil
	}

	refs, err := parser.ParseModelRefs(uploadPage.Body)
	if err != nil {
		c.tel.ReportWarning(report_collect_upload, err)
		snap.Sections[snapshot.SectionModels] = snapshot.Unavailable(err.Error())
		snap.Warnings = append(snap.Warnings, err.Error())
		return nil, nil
	}
	snap.ModelCount = len(refs)
	snap.Sections[snapshot.SectionModels] = snapshot.Available()

	scan := makerworld.LimitModels(refs, settings.MaxModels)
	snap.ScannedModels = len(scan)

	candidates := make([]parser.ModelCandidate, 0, len(scan))
	for _, ref := range scan {
		page, err := c.fetcher.FetchModelPage(ctx, creds, ref)
		if err != nil {
			if aborts(ctx, err) {
				return nil, err
			}
			c.tel.ReportDebug(report_collect_model, "skipping model", ref.ID, err)
			snap.Warnings = append(snap.Warnings, fmt.Sprintf("model %d: %s", ref.ID, err.Error()))
			continue
		}
		candidate, err := parser.ParseModelDetail(page.Body, ref)
		if err != nil {
			c.tel.ReportDebug(report_collect_model, "skipping model", ref.ID, err)
			snap.Warnings = append(snap.Warnings, fmt.Sprintf("model %d: %s", ref.ID, err.Error()))
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}
