package url

import (
	"fmt"
	"net/url"
	"strings"
)

type URL = url.URL

func MustURL(value string) *url.URL {
	url, err := url.Parse(value)
	if err != nil {
		panic(fmt.Sprintf("Invalid URL: %s", value))
	}
	return url
}

// Resolve resolves a possibly relative link against the base URL. Absolute links are returned as is, as well as all
// links when the base URL is empty or invalid.
func Resolve(base string, link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", nil
	}

	parsed, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("got an invalid link: %q", link)
	} else if parsed.IsAbs() {
		return link, nil
	}

	baseURL, err := url.Parse(base)
	if err != nil || !baseURL.IsAbs() {
		return link, nil
	}

	return baseURL.ResolveReference(parsed).String(), nil
}
