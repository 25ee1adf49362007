package parser

import "makerworld-stats/internal/snapshot"

// ProfileResult holds everything extracted from the profile page. Found is
// false when the page carries no profile data block at all.
type ProfileResult struct {
	Found       bool
	Stats       snapshot.Stats
	Badges      snapshot.Badges
	Permissions snapshot.Permissions
	Identity    snapshot.Identity
	Extras      snapshot.Extras
	Sections    map[snapshot.Section]snapshot.SectionStatus
}

var ProfileSections = []snapshot.Section{
	snapshot.SectionStats,
	snapshot.SectionBadges,
	snapshot.SectionPermissions,
	snapshot.SectionIdentity,
	snapshot.SectionExtras,
}

// Err returns a *ParseError describing the unavailable sections, or nil.
func (r ProfileResult) Err() error {
	var unavailable []snapshot.Section
	for _, s := range ProfileSections {
		if !r.Sections[s].Available {
			unavailable = append(unavailable, s)
		}
	}
	if len(unavailable) == 0 {
		return nil
	}
	err := &ParseError{
		Page:     "profile",
		Sections: unavailable,
		Partial:  r.Found,
	}
	if !r.Found {
		err.Err = ErrNoUserInfo
	}
	return err
}

func unavailableProfile(reason string) ProfileResult {
	result := ProfileResult{Sections: map[snapshot.Section]snapshot.SectionStatus{}}
	for _, s := range ProfileSections {
		result.Sections[s] = snapshot.Unavailable(reason)
	}
	return result
}

// ParseProfile never fails, a page without profile data yields a result
// with Found=false and every section unavailable.
func ParseProfile(raw []byte) ProfileResult {
	doc, err := loadDocument(raw)
	if err != nil {
		return unavailableProfile(err.Error())
	}
	data, err := nextData(doc)
	if err != nil {
		return unavailableProfile(err.Error())
	}
	userInfo := data.get("props.pageProps.userInfo")
	if !userInfo.isObject() {
		return unavailableProfile(ErrNoUserInfo.Error())
	}

	result := ProfileResult{
		Found:    true,
		Sections: map[snapshot.Section]snapshot.SectionStatus{},
	}
	result.Stats, result.Sections[snapshot.SectionStats] = parseStats(data, userInfo)
	result.Badges, result.Sections[snapshot.SectionBadges] = parseBadges(userInfo)
	result.Permissions, result.Sections[snapshot.SectionPermissions] = parsePermissions(userInfo)
	result.Identity, result.Sections[snapshot.SectionIdentity] = parseIdentity(userInfo)
	result.Extras, result.Sections[snapshot.SectionExtras] = parseExtras(userInfo)
	return result
}

func firstKnown(nodes ...node) snapshot.Count {
	for _, n := range nodes {
		c := n.count()
		if c.Known {
			return c
		}
	}
	return snapshot.Count{}
}

func parseStats(data, userInfo node) (snapshot.Stats, snapshot.SectionStatus) {
	stats := snapshot.Stats{
		Likes:     userInfo.key("likeCount").count(),
		Downloads: userInfo.get("MWCount.myDesignDownloadCount").count(),
		Prints:    userInfo.get("MWCount.myDesignPrintCount").count(),
		Points: firstKnown(
			userInfo.key("point"),
			userInfo.key("points"),
			userInfo.key("pointCount"),
			data.get("props.pageProps.summary.Points"),
		),
		Followers: userInfo.key("fanCount").count(),
		Boosts:    userInfo.key("boostGained").count(),
	}
	all := []snapshot.Count{stats.Likes, stats.Downloads, stats.Prints, stats.Points, stats.Followers, stats.Boosts}
	for _, c := range all {
		if c.Known {
			return stats, snapshot.Available()
		}
	}
	return snapshot.Stats{}, snapshot.Unavailable("no statistic fields found")
}

func parseBadges(userInfo node) (snapshot.Badges, snapshot.SectionStatus) {
	badges := snapshot.Badges{
		Titles:            []string{},
		Verified:          userInfo.key("certificated").flag(),
		CommercialLicence: userInfo.key("canSubscribeCommercialLicense").flag(),
	}
	list, hasList := userInfo.key("badges").list()
	for _, item := range list {
		title, ok := item.key("title").str()
		if ok && title != "" {
			badges.Titles = append(badges.Titles, title)
		}
	}
	if !hasList && !badges.Verified.Known && !badges.CommercialLicence.Known {
		return snapshot.Badges{}, snapshot.Unavailable("no badge fields found")
	}
	return badges, snapshot.Available()
}

func parsePermissions(userInfo node) (snapshot.Permissions, snapshot.SectionStatus) {
	banned := userInfo.key("bannedPermission")
	if !banned.isObject() {
		return snapshot.Permissions{}, snapshot.Unavailable("bannedPermission not found")
	}
	// absent flags inside a present object mean not banned
	flag := func(k string) bool {
		return banned.key(k).flag().Value
	}
	return snapshot.Permissions{
		Comment:      flag("comment"),
		Community:    flag("community"),
		DesignNotify: flag("designNotify"),
		PrivateMsg:   flag("privateMsg"),
		Redeem:       flag("redeem"),
		Upload:       flag("upload"),
		Whole:        flag("whole"),
	}, snapshot.Available()
}

func parseIdentity(userInfo node) (snapshot.Identity, snapshot.SectionStatus) {
	var identity snapshot.Identity
	identity.Handle, _ = userInfo.key("handle").str()
	identity.Name, _ = userInfo.key("name").str()
	identity.UID, _ = userInfo.key("uid").integer()
	if identity.Handle == "" && identity.UID == 0 {
		return snapshot.Identity{}, snapshot.Unavailable("no handle or uid found")
	}
	return identity, snapshot.Available()
}

func parseExtras(userInfo node) (snapshot.Extras, snapshot.SectionStatus) {
	extras := snapshot.Extras{
		Designs:         userInfo.get("MWCount.designCount").count(),
		Collections:     userInfo.key("collectionCount").count(),
		Following:       userInfo.key("followCount").count(),
		FeaturedDesigns: userInfo.key("featuredDesignCnt").count(),
		ContestWins:     userInfo.key("winContestTimes").count(),
	}
	all := []snapshot.Count{extras.Designs, extras.Collections, extras.Following, extras.FeaturedDesigns, extras.ContestWins}
	for _, c := range all {
		if c.Known {
			return extras, snapshot.Available()
		}
	}
	return snapshot.Extras{}, snapshot.Unavailable("no extra fields found")
}
