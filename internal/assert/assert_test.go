package assert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAssertions(t *testing.T) {
	require.Panics(t, func() { NotNil(nil, "value") })
	require.NotPanics(t, func() { NotNil(struct{}{}, "value") })

	require.Panics(t, func() { NotEmptyStr("", "username") })
	require.NotPanics(t, func() { NotEmptyStr("someone", "username") })

	require.Panics(t, func() { Positive(time.Duration(0), "interval") })
	require.Panics(t, func() { Positive(-1, "count") })
	require.NotPanics(t, func() { Positive(time.Second, "interval") })
}
