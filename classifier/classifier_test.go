package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/saiset-co/sai-offline-cache/types"
)

func TestClassify(t *testing.T) {
	c := New(nil)

	tests := []struct {
		name     string
		method   string
		url      string
		expected types.Classification
	}{
		{"api prefix", "GET", "https://example.com/api/generate", types.ClassAPI},
		{"api prefix with query", "GET", "https://example.com/api/designs?page=2", types.ClassAPI},
		{"script asset", "GET", "https://example.com/assets/app.js", types.ClassStaticAsset},
		{"stylesheet asset", "GET", "https://example.com/styles/main.css", types.ClassStaticAsset},
		{"font asset", "GET", "https://example.com/fonts/inter.woff2", types.ClassStaticAsset},
		{"svg asset", "GET", "https://example.com/logo.svg", types.ClassStaticAsset},
		{"page", "GET", "https://example.com/designs/42", types.ClassOther},
		{"root document", "GET", "https://example.com/", types.ClassOther},
		{"post is other", "POST", "https://example.com/api/generate", types.ClassOther},
		{"delete is other", "DELETE", "https://example.com/assets/app.js", types.ClassOther},
		{"lowercase get", "get", "https://example.com/app.js", types.ClassStaticAsset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := c.Classify(&types.Request{Method: tt.method, URL: tt.url})
			assert.Equal(t, tt.expected, result)
		})
	}
}

// Extension matching is substring-based on purpose; a URL merely
// containing the token qualifies even when it is not a true suffix.
func TestClassifyPermissiveExtensionMatch(t *testing.T) {
	c := New(nil)

	result := c.Classify(&types.Request{
		Method: "GET",
		URL:    "https://example.com/docs/why-we-chose.js-frameworks",
	})
	assert.Equal(t, types.ClassStaticAsset, result)

	result = c.Classify(&types.Request{
		Method: "GET",
		URL:    "https://example.com/report?format=.css",
	})
	assert.Equal(t, types.ClassStaticAsset, result)
}

func TestClassifyCustomConfig(t *testing.T) {
	c := New(&types.ClassifierConfig{
		APIPrefix:  "/v2/",
		Extensions: []string{".wasm"},
	})

	assert.Equal(t, types.ClassAPI,
		c.Classify(&types.Request{Method: "GET", URL: "https://example.com/v2/things"}))
	assert.Equal(t, types.ClassStaticAsset,
		c.Classify(&types.Request{Method: "GET", URL: "https://example.com/mod.wasm"}))
	assert.Equal(t, types.ClassOther,
		c.Classify(&types.Request{Method: "GET", URL: "https://example.com/api/things"}))
	assert.Equal(t, types.ClassOther,
		c.Classify(&types.Request{Method: "GET", URL: "https://example.com/app.js"}))
}
