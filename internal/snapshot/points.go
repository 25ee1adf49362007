package snapshot

import (
	"strings"
	"time"
)

// BinaryPoint is a derived boolean exposed to consumers, an unknown Value
// means the owning section was not available in the snapshot.
type BinaryPoint struct {
	Key   string
	Name  string
	Value Flag
}

// SensorPoint is a derived value exposed to consumers, a nil Value is unknown.
type SensorPoint struct {
	Key        string
	Name       string
	Value      any
	Attributes map[string]any
}

func (s Snapshot) BinaryPoints() []BinaryPoint {
	badges := s.Section(SectionBadges).Available
	permissions := s.Section(SectionPermissions).Available

	flag := func(available bool, value Flag) Flag {
		if !available {
			return Flag{}
		}
		return value
	}
	banned := func(value bool) Flag {
		if !permissions {
			return Flag{}
		}
		return KnownFlag(value)
	}

	return []BinaryPoint{
		{Key: "verified", Name: "Verified", Value: flag(badges, s.Badges.Verified)},
		{Key: "commercial_licence", Name: "Commercial Licence", Value: flag(badges, s.Badges.CommercialLicence)},
		{Key: "banned_comment", Name: "Banned Comment", Value: banned(s.Permissions.Comment)},
		{Key: "banned_community", Name: "Banned Community", Value: banned(s.Permissions.Community)},
		{Key: "banned_design_notify", Name: "Banned Design Notify", Value: banned(s.Permissions.DesignNotify)},
		{Key: "banned_private_msg", Name: "Banned Private Msg", Value: banned(s.Permissions.PrivateMsg)},
		{Key: "banned_redeem", Name: "Banned Redeem", Value: banned(s.Permissions.Redeem)},
		{Key: "banned_upload", Name: "Banned Upload", Value: banned(s.Permissions.Upload)},
		{Key: "banned_whole", Name: "Banned Whole", Value: banned(s.Permissions.Whole)},
	}
}

func countValue(available bool, c Count) any {
	if !available || !c.Known {
		return nil
	}
	return c.Value
}

func (s Snapshot) highlightPoint(key, name string, category Category) SensorPoint {
	point := SensorPoint{Key: key, Name: name}
	if !s.Section(SectionHighlights).Available {
		return point
	}
	h, ok := s.Highlight(category)
	if !ok {
		return point
	}
	point.Value = h.Title
	point.Attributes = map[string]any{
		"title": h.Title,
		"url":   h.URL,
		"id":    h.ModelID,
		"count": h.Count,
	}
	return point
}

func (s Snapshot) SensorPoints() []SensorPoint {
	stats := s.Section(SectionStats).Available

	var models any
	if s.Section(SectionModels).Available {
		models = int64(s.ModelCount)
	}

	points := []SensorPoint{
		{Key: "likes", Name: "Likes", Value: countValue(stats, s.Stats.Likes)},
		{Key: "downloads", Name: "Downloads", Value: countValue(stats, s.Stats.Downloads)},
		{Key: "prints", Name: "Prints", Value: countValue(stats, s.Stats.Prints)},
		{Key: "points", Name: "Points", Value: countValue(stats, s.Stats.Points)},
		{Key: "followers", Name: "Followers", Value: countValue(stats, s.Stats.Followers)},
		{Key: "boosts_received", Name: "Boosts Received", Value: countValue(stats, s.Stats.Boosts)},
		{Key: "models", Name: "Models", Value: models},
		s.highlightPoint("most_liked_model", "Most Liked Model", CategoryLiked),
		s.highlightPoint("most_downloaded_model", "Most Downloaded Model", CategoryDownloaded),
		s.highlightPoint("most_printed_model", "Most Printed Model", CategoryPrinted),
	}

	badges := SensorPoint{Key: "badges", Name: "Badges"}
	if s.Section(SectionBadges).Available {
		if len(s.Badges.Titles) > 0 {
			badges.Value = strings.Join(s.Badges.Titles, ", ")
		}
		badges.Attributes = map[string]any{
			"badges":             append([]string{}, s.Badges.Titles...),
			"verified":           flagValue(s.Badges.Verified),
			"commercial_licence": flagValue(s.Badges.CommercialLicence),
		}
	}
	points = append(points, badges)

	lastUpdate := SensorPoint{Key: "last_update", Name: "Last Update"}
	if !s.FetchedAt.IsZero() {
		lastUpdate.Value = s.FetchedAt.UTC().Format(time.RFC3339)
	}
	points = append(points, lastUpdate)

	return points
}

func flagValue(f Flag) any {
	if !f.Known {
		return nil
	}
	return f.Value
}
