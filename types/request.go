package types

import (
	"time"
)

// Request is the unit of work crossing the interception boundary.
// It is immutable once classified.
type Request struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

type Classification int

const (
	ClassAPI Classification = iota
	ClassStaticAsset
	ClassOther
)

func (c Classification) String() string {
	switch c {
	case ClassAPI:
		return "api"
	case ClassStaticAsset:
		return "static_asset"
	default:
		return "other"
	}
}

// Snapshot is a captured, immutable copy of a response stored under a
// request key. Within one store each key maps to at most one snapshot,
// last write wins.
type Snapshot struct {
	Status     int               `json:"status"`
	Headers    map[string]string `json:"headers"`
	Body       []byte            `json:"body"`
	CapturedAt time.Time         `json:"captured_at"`
}

func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}

	headers := make(map[string]string, len(s.Headers))
	for k, v := range s.Headers {
		headers[k] = v
	}

	body := make([]byte, len(s.Body))
	copy(body, s.Body)

	return &Snapshot{
		Status:     s.Status,
		Headers:    headers,
		Body:       body,
		CapturedAt: s.CapturedAt,
	}
}

func (s *Snapshot) IsSuccess() bool {
	return s != nil && s.Status >= 200 && s.Status < 300
}

const (
	SourceNetwork     = "network"
	SourceCache       = "cache"
	SourceSynthesized = "synthesized"
	SourcePassthrough = "passthrough"
)

// Response is what the layer hands back across the interception
// boundary. Every intercepted request produces exactly one Response.
type Response struct {
	Snapshot
	Source string `json:"source"`
}

// Generation is the set of store names considered current for one
// version of the caching layer.
type Generation struct {
	Version string `json:"version"`
}

func (g Generation) StaticStoreName() string {
	return "static-" + g.Version
}

func (g Generation) DynamicStoreName() string {
	return "dynamic-" + g.Version
}

// RetainedNames is the store-name set activation keeps; everything
// else is garbage.
func (g Generation) RetainedNames() []string {
	return []string{g.StaticStoreName(), g.DynamicStoreName()}
}
