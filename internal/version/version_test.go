package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		in    string
		parts string
		ok    bool
	}{
		{"1", "1", true},
		{"1.2", "1.2", true},
		{"2.0.10", "2.0.10", true},
		{"007", "007", true},
		{"", "", false},
		{"1..2", "", false},
		{"1.a", "", false},
		{"v1", "", false},
		{"-1", "", false},
		{"1.2.", "", false},
	} {
		v, err := Parse(tc.in)
		if !tc.ok {
			require.ErrorIs(t, err, ErrInvalid, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		require.Equal(t, tc.parts, v.String())
	}
}

func TestCompare(t *testing.T) {
	for _, tc := range []struct {
		a, b string
		want int
	}{
		{"1", "2", -1},
		{"2", "1", 1},
		{"1", "1", 0},
		{"1", "1.0", 0},
		{"1.0.0", "1", 0},
		{"1.2", "1.10", -1},
		{"2.0.10", "2.0.9", 1},
		{"10", "9", 1},
	} {
		require.Equal(t, tc.want, MustParse(tc.a).Compare(MustParse(tc.b)), "%s vs %s", tc.a, tc.b)
	}
}

func TestSentinels(t *testing.T) {
	v := MustParse("999999.999999")
	require.Equal(t, 1, Max.Compare(v))
	require.Equal(t, -1, v.Compare(Max))
	require.Equal(t, 0, Max.Compare(Max))
	require.Equal(t, -1, Zero.Compare(MustParse("0.0.1")))
	require.Equal(t, 0, Zero.Compare(Zero))
	require.True(t, Zero.IsZero())
	require.True(t, Max.IsMax())
	require.False(t, v.IsZero())
	require.Equal(t, "0", Zero.String())
}

func TestEqualIsStructural(t *testing.T) {
	require.True(t, MustParse("1.2").Equal(MustParse("1.2")))
	require.False(t, MustParse("1").Equal(MustParse("1.0")))
	require.Equal(t, 0, MustParse("1").Compare(MustParse("1.0")))
	require.False(t, Max.Equal(MustParse("1")))
}
