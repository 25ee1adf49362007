package trigger

import (
	"context"
	"makerworld-stats/internal/coordinator"
	"makerworld-stats/internal/makerworld"
	"makerworld-stats/internal/parser"
	"makerworld-stats/internal/snapshot"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeUpdater struct {
	reasons []coordinator.Reason
	snap    snapshot.Snapshot
	err     error
}

func (f *fakeUpdater) RequestUpdate(ctx context.Context, reason coordinator.Reason) (snapshot.Snapshot, error) {
	f.reasons = append(f.reasons, reason)
	return f.snap, f.err
}

func TestPress(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		ok      bool
		message string
	}{
		{name: "success", ok: true, message: "updated (#3)"},
		{
			name:    "partial",
			err:     &parser.ParseError{Page: "profile", Sections: []snapshot.Section{snapshot.SectionBadges}, Partial: true},
			ok:      true,
			message: "updated with warnings (#3)",
		},
		{
			name:    "auth",
			err:     &makerworld.AuthError{Reason: "no session cookie configured"},
			message: "update failed (AUTH)",
		},
		{
			name:    "total parse failure",
			err:     &parser.ParseError{Page: "profile", Err: parser.ErrNoUserInfo},
			message: "update failed (PARSE)",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			updater := &fakeUpdater{snap: snapshot.Snapshot{Sequence: 3}, err: tc.err}
			feedback := NewButton(updater).Press(context.Background())
			require.Equal(t, tc.ok, feedback.OK)
			require.Contains(t, feedback.Message, tc.message)
			require.Equal(t, uint64(3), feedback.Snapshot.Sequence)
			require.Equal(t, []coordinator.Reason{coordinator.ReasonManual}, updater.reasons)
		})
	}
}
