package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/saiset-co/sai-offline-cache/types"
)

func TestRequestKey(t *testing.T) {
	tests := []struct {
		name     string
		request  *types.Request
		expected string
	}{
		{
			"plain",
			&types.Request{Method: "GET", URL: "https://example.com/api/designs"},
			"GET https://example.com/api/designs",
		},
		{
			"query preserved",
			&types.Request{Method: "GET", URL: "https://example.com/api/designs?page=2&sort=asc"},
			"GET https://example.com/api/designs?page=2&sort=asc",
		},
		{
			"host lowercased",
			&types.Request{Method: "GET", URL: "HTTPS://Example.COM/path"},
			"GET https://example.com/path",
		},
		{
			"fragment stripped",
			&types.Request{Method: "GET", URL: "https://example.com/page#section"},
			"GET https://example.com/page",
		},
		{
			"method uppercased",
			&types.Request{Method: "get", URL: "https://example.com/"},
			"GET https://example.com/",
		},
		{
			"empty path becomes root",
			&types.Request{Method: "GET", URL: "https://example.com"},
			"GET https://example.com/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RequestKey(tt.request))
		})
	}
}

func TestRequestKeyDistinguishesQueries(t *testing.T) {
	a := RequestKey(&types.Request{Method: "GET", URL: "https://example.com/api/x?id=1"})
	b := RequestKey(&types.Request{Method: "GET", URL: "https://example.com/api/x?id=2"})
	assert.NotEqual(t, a, b)
}
