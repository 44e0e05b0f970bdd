package cachekit

import "fmt"

// Key builders. Every cached query shape derives its key here so write
// paths and read paths agree on what a given write invalidates.

const (
	PrefixContentList = "contents:list:"
	KeyGlobalStats    = "stats:global"
	KeyLeaderboard    = "stats:leaderboard"
)

// ContentListKey is the key for one page of the public content listing.
func ContentListKey(page, size int) string {
	return fmt.Sprintf("%sp%d:s%d", PrefixContentList, page, size)
}

// ContentKey is the key for a single content record read.
func ContentKey(id string) string {
	return "contents:one:" + id
}
