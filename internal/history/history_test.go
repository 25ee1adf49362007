package history

import (
	"context"
	"makerworld-stats/internal/coordinator"
	"makerworld-stats/internal/snapshot"
	"makerworld-stats/internal/telemetry"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func testSnapshot(sequence uint64, likes int64, at time.Time) snapshot.Snapshot {
	return snapshot.Snapshot{
		Stats: snapshot.Stats{
			Likes:     snapshot.KnownCount(likes),
			Downloads: snapshot.KnownCount(0),
		},
		Badges: snapshot.Badges{
			Titles:   []string{"Maker"},
			Verified: snapshot.KnownFlag(true),
		},
		Highlights: []snapshot.ModelHighlight{
			{Category: snapshot.CategoryLiked, ModelID: 1, Title: "One", Count: 5},
		},
		ModelCount: 4,
		Sections: map[snapshot.Section]snapshot.SectionStatus{
			snapshot.SectionStats:  snapshot.Available(),
			snapshot.SectionBadges: snapshot.Unavailable("missing"),
		},
		FetchedAt: at,
		Sequence:  sequence,
	}
}

func TestRecordAndRecent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	entries, err := store.Recent(ctx, "maker", 10)
	require.NoError(t, err)
	require.Empty(t, entries)

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := testSnapshot(1, 100, start)
	second := testSnapshot(2, 120, start.Add(time.Hour))
	require.NoError(t, store.Record(ctx, "maker", first))
	require.NoError(t, store.Record(ctx, "maker", second))
	require.NoError(t, store.Record(ctx, "other", testSnapshot(1, 1, start)))

	entries, err = store.Recent(ctx, "maker", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, uint64(2), entries[0].Sequence)
	require.Equal(t, second.FetchedAt, entries[0].FetchedAt)
	require.Equal(t, snapshot.KnownCount(120), entries[0].Stats.Likes)
	require.Equal(t, snapshot.KnownCount(0), entries[0].Stats.Downloads)
	require.False(t, entries[0].Stats.Prints.Known)
	require.Equal(t, 4, entries[0].Models)
	require.Empty(t, cmp.Diff(second, entries[0].Snapshot))

	entries, err = store.Recent(ctx, "maker", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestSubscriberRecordsPublishedOnly(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	tel := &telemetry.MemoryAPI{}
	subscriber := store.Subscriber(ctx, "maker", tel)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	subscriber(coordinator.Update{Published: true, Snapshot: testSnapshot(1, 10, at)})
	subscriber(coordinator.Update{Published: false, Snapshot: testSnapshot(1, 10, at), Error: &coordinator.ErrorState{Kind: coordinator.KindNetwork}})

	entries, err := store.Recent(ctx, "maker", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Empty(t, tel.Reports(telemetry.LevelBroken))
}
