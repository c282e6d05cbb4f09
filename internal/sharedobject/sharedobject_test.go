package sharedobject

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type stubPayload struct{ value int }

func (s *stubPayload) Clone() Payload {
	clone := *s
	return &clone
}

func TestObject_NewAssignsVersionWhenEmpty(t *testing.T) {
	o := New(&stubPayload{value: 1}, "")
	require.NotEmpty(t, o.Version())
	require.Empty(t, o.PreviousVersions())
}

func TestObject_NewVersionDeepCopiesAndResetsLiveness(t *testing.T) {
	original := New(&stubPayload{value: 1}, "v1")
	original.SetActuallyLive(true)
	original.SetPotentiallyLive(true)

	next := original.NewVersion("v2")

	require.Equal(t, "v2", next.Version())
	require.Equal(t, []string{"v1"}, next.PreviousVersions())
	require.False(t, next.ActuallyLive())
	require.False(t, next.PotentiallyLive())

	nextPayload := next.Payload().(*stubPayload)
	nextPayload.value = 99
	require.Equal(t, 1, original.Payload().(*stubPayload).value, "clone must be independent of the original")
}

func TestGenerateVersion_ProducesDistinctValues(t *testing.T) {
	a := GenerateVersion()
	b := GenerateVersion()
	require.NotEqual(t, a, b)
	require.Len(t, a, 32)
}
