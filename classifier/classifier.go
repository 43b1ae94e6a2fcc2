package classifier

import (
	"net/url"
	"strings"

	"github.com/saiset-co/sai-offline-cache/types"
)

// DefaultExtensions covers scripts, stylesheets, raster and vector
// images and font formats.
var DefaultExtensions = []string{
	".js", ".css",
	".png", ".jpg", ".jpeg", ".gif", ".webp", ".ico",
	".svg",
	".woff", ".woff2", ".ttf", ".eot",
}

const DefaultAPIPrefix = "/api/"

// Classifier routes a request to one of the three caching strategies.
// Classification is a pure function of the request.
type Classifier struct {
	apiPrefix  string
	extensions []string
}

func New(config *types.ClassifierConfig) *Classifier {
	c := &Classifier{
		apiPrefix:  DefaultAPIPrefix,
		extensions: DefaultExtensions,
	}

	if config != nil {
		if config.APIPrefix != "" {
			c.apiPrefix = config.APIPrefix
		}
		if len(config.Extensions) > 0 {
			c.extensions = config.Extensions
		}
	}

	return c
}

// Classify maps a request to its strategy class. Non-GET requests are
// ClassOther; callers treat non-GET as "do not intercept" and pass the
// request straight through.
//
// Asset matching is deliberately substring-based on the extension
// token, not strict suffix matching: a URL merely containing ".js"
// anywhere qualifies. The over-match is known and kept.
func (c *Classifier) Classify(request *types.Request) types.Classification {
	if !strings.EqualFold(request.Method, "GET") {
		return types.ClassOther
	}

	if parsed, err := url.Parse(request.URL); err == nil {
		if strings.HasPrefix(parsed.Path, c.apiPrefix) {
			return types.ClassAPI
		}
	}

	for _, ext := range c.extensions {
		if strings.Contains(request.URL, ext) {
			return types.ClassStaticAsset
		}
	}

	return types.ClassOther
}
