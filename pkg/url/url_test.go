package url

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	const base = "https://example.com/blog/rss.xml"

	testCases := []struct {
		link     string
		expected string
	}{
		{"", ""},
		{"https://other.example.com/item", "https://other.example.com/item"},
		{" https://example.com/item ", "https://example.com/item"},
		{"/item", "https://example.com/item"},
		{"item", "https://example.com/blog/item"},
		{"//cdn.example.com/item", "https://cdn.example.com/item"},
		{"?id=1", "https://example.com/blog/rss.xml?id=1"},
	}

	for _, testCase := range testCases {
		resolved, err := Resolve(base, testCase.link)
		require.NoError(t, err)
		require.Equal(t, testCase.expected, resolved, testCase.link)
	}

	resolved, err := Resolve("", "/item")
	require.NoError(t, err)
	require.Equal(t, "/item", resolved)

	_, err = Resolve(base, "http://[::1")
	require.ErrorContains(t, err, "got an invalid link")
}

func TestMustURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "example.com", MustURL("https://example.com/").Host)
	require.Panics(t, func() {
		MustURL("http://[::1")
	})
}
