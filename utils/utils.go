package utils

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Deref returns *p, or the zero value when p is nil.
func Deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// EncodeCursor turns a row id into the opaque cursor handed to clients.
func EncodeCursor(id int64) string {
	return base64.StdEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

// DecodeCursor is the inverse of EncodeCursor.
func DecodeCursor(cursor string) (int64, error) {
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor %q: %w", cursor, err)
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid cursor %q", cursor)
	}
	return id, nil
}

// LevenshteinDistance calculates the Levenshtein distance between two strings.
// Used to suggest the closest valid value for a mistyped enum.
func LevenshteinDistance(s1, s2 string) int {
	len1 := len(s1)
	len2 := len(s2)
	if len1 == 0 {
		return len2
	}
	if len2 == 0 {
		return len1
	}
	prev := make([]int, len2+1)
	cur := make([]int, len2+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len1; i++ {
		cur[0] = i
		for j := 1; j <= len2; j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len2]
}

// Closest returns the candidate nearest to s, ignoring case, or "" when
// nothing is within maxDist edits.
func Closest(s string, candidates []string, maxDist int) string {
	best, bestDist := "", maxDist+1
	up := strings.ToUpper(strings.TrimSpace(s))
	for _, c := range candidates {
		if d := LevenshteinDistance(up, strings.ToUpper(c)); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// BytesToInt converts a byte slice (e.g., from SHA256 sum) to an int64.
// Used for generating a deterministic seed from a hash.
func BytesToInt(b []byte) int64 {
	var i int64
	for idx, val := range b {
		if idx >= 8 {
			break
		}
		i = (i << 8) | int64(val)
	}
	return i
}

// Seed hashes the formatted key into a deterministic random seed.
func Seed(format string, args ...any) int64 {
	sum := sha256.Sum256([]byte(fmt.Sprintf(format, args...)))
	return BytesToInt(sum[:])
}
