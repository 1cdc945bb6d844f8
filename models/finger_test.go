package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFinger(t *testing.T) {
	for _, finger := range AllFingers() {
		parsed, err := ParseFinger(string(finger))
		require.NoError(t, err)
		require.Equal(t, finger, parsed)
	}
}

func TestParseFinger_Fail_Unknown(t *testing.T) {
	_, err := ParseFinger("sixth-finger")
	require.Error(t, err)

	_, err = ParseFinger("")
	require.Error(t, err)

	// display names are not identifiers
	_, err = ParseFinger("Right thumb")
	require.Error(t, err)
}

func TestAllFingers_CountAndOrder(t *testing.T) {
	fingers := AllFingers()
	require.Len(t, fingers, 10)
	require.Equal(t, RightThumb, fingers[0])
	require.Equal(t, LeftLittle, fingers[9])
}

func TestFingerDisplayName(t *testing.T) {
	require.Equal(t, "Right index finger", RightIndex.DisplayName())
	require.Equal(t, "Left thumb", LeftThumb.DisplayName())

	// unknown fingers fall back to the raw identifier
	require.Equal(t, "whatever", Finger("whatever").DisplayName())
}
