package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	c := EncodeCursor(42)
	id, err := DecodeCursor(c)
	require.NoError(t, err)
	require.Equal(t, int64(42), id)

	_, err = DecodeCursor("not base64!")
	require.Error(t, err)
	_, err = DecodeCursor(EncodeCursor(0))
	require.Error(t, err)
}

func TestLevenshteinDistance(t *testing.T) {
	require.Equal(t, 0, LevenshteinDistance("ESSAY", "ESSAY"))
	require.Equal(t, 3, LevenshteinDistance("kitten", "sitting"))
	require.Equal(t, 4, LevenshteinDistance("", "true"))
}

func TestClosest(t *testing.T) {
	types := []string{"MULTIPLE_CHOICE", "TRUE_FALSE", "SHORT_ANSWER", "ESSAY"}
	require.Equal(t, "MULTIPLE_CHOICE", Closest("multiple_choise", types, 3))
	require.Equal(t, "ESSAY", Closest("essey", types, 3))
	require.Equal(t, "", Closest("matching", types, 3))
}

func TestSeedIsDeterministic(t *testing.T) {
	require.Equal(t, Seed("%d:%d", 1, 2), Seed("%d:%d", 1, 2))
	require.NotEqual(t, Seed("%d:%d", 1, 2), Seed("%d:%d", 2, 1))
}

func TestPointers(t *testing.T) {
	require.Equal(t, 0, Deref[int](nil))
	require.Equal(t, 3, Deref(Ptr(3)))
}
