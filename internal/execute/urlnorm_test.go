package execute

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeURLStripsTracking(t *testing.T) {
	got := NormalizeURL("https://x.com/job/1?utm_source=a&id=1")
	assert.Equal(t, "https://x.com/job/1?id=1", got)

	got = NormalizeURL("https://x.com/job/1?utm_source=a&utm_medium=email&ref=newsletter&source=feed")
	assert.Equal(t, "https://x.com/job/1", got)
}

func TestNormalizeURLIdempotent(t *testing.T) {
	urls := []string{
		"https://x.com/job/1?utm_source=a&id=1",
		"https://boards.example.com/jobs/123",
		"https://x.com/a?b=2&a=1",
	}
	for _, u := range urls {
		once := NormalizeURL(u)
		assert.Equal(t, once, NormalizeURL(once), u)
	}
}

func TestNormalizeURLKeepsRealParams(t *testing.T) {
	got := NormalizeURL("https://x.com/search?q=backend&page=2")
	assert.Contains(t, got, "q=backend")
	assert.Contains(t, got, "page=2")
}

func TestNormalizeURLMalformedFallsBack(t *testing.T) {
	assert.Equal(t, "not a url at all", NormalizeURL("  not a url at all  "))
	assert.Equal(t, "://missing-scheme", NormalizeURL("://missing-scheme"))
	assert.Equal(t, "", NormalizeURL("   "))
}

func TestNormalizeURLDropsFragment(t *testing.T) {
	assert.Equal(t, "https://x.com/job/1", NormalizeURL("https://x.com/job/1#apply"))
}
