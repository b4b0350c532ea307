package arcade

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeNickname(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"ace", "ACE"},
		{"  a c e  ", "ACE"},
		{"player_1", "PLAYER_1"},
		{"d.j.-khaled!", "DJKHALED"},
		{"verylongnickname", "VERYLONGNI"},
		{"????", ""},
		{"", ""},
		{"\tB\nE\rE ", "BEE"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, CanonicalizeNickname(tc.raw), "raw=%q", tc.raw)
	}
}

func TestCanonicalizeNicknameIdempotent(t *testing.T) {
	inputs := []string{"ace", "  A C E ", "d.j.-khaled!", "verylongnickname", "??", "", "X", "ABC_123"}
	for _, raw := range inputs {
		once := CanonicalizeNickname(raw)
		assert.Equal(t, once, CanonicalizeNickname(once), "raw=%q", raw)
	}
}

func TestIsValidCanonicalNickname(t *testing.T) {
	assert.True(t, IsValidCanonicalNickname("AB"))
	assert.True(t, IsValidCanonicalNickname("PLAYER_1"))
	assert.True(t, IsValidCanonicalNickname("ABCDEFGHIJ"))

	assert.False(t, IsValidCanonicalNickname("A"))
	assert.False(t, IsValidCanonicalNickname("ABCDEFGHIJK"))
	assert.False(t, IsValidCanonicalNickname("lower"))
	assert.False(t, IsValidCanonicalNickname("HAS SPACE"))
	assert.False(t, IsValidCanonicalNickname(""))
}

func TestSanitizeScore(t *testing.T) {
	v, ok := SanitizeScore(500)
	require.True(t, ok)
	assert.Equal(t, int64(500), v)

	v, ok = SanitizeScore(99.9)
	require.True(t, ok)
	assert.Equal(t, int64(99), v)

	v, ok = SanitizeScore(-3)
	require.True(t, ok)
	assert.Equal(t, int64(0), v)

	_, ok = SanitizeScore(math.NaN())
	assert.False(t, ok)

	_, ok = SanitizeScore(math.Inf(1))
	assert.False(t, ok)
}

func TestGameIDValidation(t *testing.T) {
	assert.Equal(t, "flappy", NormalizeGameID("  Flappy "))

	assert.True(t, IsValidGameID("flappy"))
	assert.True(t, IsValidGameID("pac-mini_2"))
	assert.True(t, IsValidGameID("a"))

	assert.False(t, IsValidGameID(""))
	assert.False(t, IsValidGameID("-leading"))
	assert.False(t, IsValidGameID("UPPER"))
	assert.False(t, IsValidGameID("abcdefghijklmnopqrstuvwxyz0123456789"))
}

func TestIsValidPIN(t *testing.T) {
	assert.True(t, IsValidPIN("0000"))
	assert.True(t, IsValidPIN("1234"))

	assert.False(t, IsValidPIN("123"))
	assert.False(t, IsValidPIN("12345"))
	assert.False(t, IsValidPIN("12a4"))
	assert.False(t, IsValidPIN(""))
}

func TestRankAndTruncate(t *testing.T) {
	entries := []Entry{
		{Nickname: "ONE", Score: 100, TS: 5},
		{Nickname: "TWO", Score: 300, TS: 2000},
		{Nickname: "THREE", Score: 300, TS: 1000},
		{Nickname: "FOUR", Score: 50, TS: 1},
		{Nickname: "FIVE", Score: 700, TS: 9},
		{Nickname: "SIX", Score: 10, TS: 3},
	}

	ranked := RankAndTruncate(entries)
	require.Len(t, ranked, MaxEntries)

	// Score descending, ties broken by earlier ts
	assert.Equal(t, "FIVE", ranked[0].Nickname)
	assert.Equal(t, "THREE", ranked[1].Nickname)
	assert.Equal(t, "TWO", ranked[2].Nickname)
	assert.Equal(t, "ONE", ranked[3].Nickname)
	assert.Equal(t, "FOUR", ranked[4].Nickname)

	// No entries invented: every output came from the input
	for _, e := range ranked {
		assert.Contains(t, entries, e)
	}

	// Input untouched
	assert.Equal(t, "ONE", entries[0].Nickname)
}

func TestRankAndTruncateSmallInput(t *testing.T) {
	assert.Empty(t, RankAndTruncate(nil))

	one := RankAndTruncate([]Entry{{Nickname: "ACE", Score: 1, TS: 1}})
	require.Len(t, one, 1)
	assert.Equal(t, "ACE", one[0].Nickname)
}

func TestSanitizeEntries(t *testing.T) {
	entries := []Entry{
		{Nickname: "ACE", Score: 10, TS: 1},
		{Nickname: "bad nick", Score: 10, TS: 1},
		{Nickname: "NEG", Score: -1, TS: 1},
		{Nickname: "OLDTS", Score: 1, TS: -5},
	}

	clean := SanitizeEntries(entries)
	require.Len(t, clean, 1)
	assert.Equal(t, "ACE", clean[0].Nickname)
}
