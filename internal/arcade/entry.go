package arcade

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// MaxEntries is the number of ranked entries kept per leaderboard
const MaxEntries = 5

var (
	nicknameRe = regexp.MustCompile(`^[A-Z0-9_]{2,10}$`)
	gameIDRe   = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)
	pinRe      = regexp.MustCompile(`^[0-9]{4}$`)
	disallowed = regexp.MustCompile(`[^A-Z0-9_]`)
)

// Entry represents one ranked leaderboard entry
type Entry struct {
	Nickname string `json:"nickname"`
	Score    int64  `json:"score"`
	TS       int64  `json:"ts"` // epoch milliseconds, earlier wins ties
}

// CanonicalizeNickname normalizes a raw nickname into canonical form:
// whitespace removed, uppercased, restricted to [A-Z0-9_], at most 10 chars.
// Total function, returns "" for unusable input.
func CanonicalizeNickname(raw string) string {
	s := strings.Join(strings.Fields(raw), "")
	s = strings.ToUpper(s)
	s = disallowed.ReplaceAllString(s, "")
	if len(s) > 10 {
		s = s[:10]
	}
	return s
}

// IsValidCanonicalNickname reports whether s is a canonical nickname
func IsValidCanonicalNickname(s string) bool {
	return nicknameRe.MatchString(s)
}

// SanitizeScore floors and clamps a raw score to a non-negative integer.
// Returns false for NaN or infinite values.
func SanitizeScore(raw float64) (int64, bool) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, false
	}
	v := int64(math.Floor(raw))
	if v < 0 {
		v = 0
	}
	return v, true
}

// NormalizeGameID trims and lowercases a raw game id
func NormalizeGameID(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// IsValidGameID reports whether s is a normalized game id
func IsValidGameID(s string) bool {
	return gameIDRe.MatchString(s)
}

// IsValidPIN reports whether s is a 4-digit PIN
func IsValidPIN(s string) bool {
	return pinRe.MatchString(s)
}

// RankAndTruncate sorts entries by score descending, ties broken by earlier
// submission time, and keeps the top MaxEntries. The input slice is not modified.
func RankAndTruncate(entries []Entry) []Entry {
	ranked := make([]Entry, len(entries))
	copy(ranked, entries)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].TS < ranked[j].TS
	})

	if len(ranked) > MaxEntries {
		ranked = ranked[:MaxEntries]
	}
	return ranked
}

// SanitizeEntries re-validates entries deserialized from storage, dropping
// anything malformed. Storage may hold old or foreign data, so the read path
// applies the same rules as the write path.
func SanitizeEntries(entries []Entry) []Entry {
	clean := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !IsValidCanonicalNickname(e.Nickname) {
			continue
		}
		if e.Score < 0 || e.TS < 0 {
			continue
		}
		clean = append(clean, e)
	}
	return clean
}
