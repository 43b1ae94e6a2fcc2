package utils

import (
	"net/url"
	"strings"

	"github.com/saiset-co/sai-offline-cache/types"
)

// RequestKey derives the request identity a snapshot is stored under:
// method plus normalized absolute URL, query string included.
func RequestKey(request *types.Request) string {
	return strings.ToUpper(request.Method) + " " + NormalizeURL(request.URL)
}

// NormalizeURL lowercases scheme and host and strips the fragment.
// The query string is part of the identity and is preserved as-is.
func NormalizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""

	if parsed.Path == "" {
		parsed.Path = "/"
	}

	return parsed.String()
}
