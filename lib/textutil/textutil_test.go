package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompact(t *testing.T) {
	require.Equal(t, "a b c", Compact("  a\n\n b\t c "))
}

func TestSnippet(t *testing.T) {
	require.Equal(t, "hello", Snippet("hello", 10))
	require.Equal(t, "hel...", Snippet("hello", 3))
	require.Equal(t, "héé...", Snippet("héééé", 3))
}

func TestContainsAny(t *testing.T) {
	markers := []string{"just a moment", "cf-chl"}
	require.True(t, ContainsAny("<title>Just a Moment...</title>", markers))
	require.True(t, ContainsAny("window.cf-chl-opt", markers))
	require.False(t, ContainsAny("<title>profile</title>", markers))
}
