package types

import (
	"context"
)

// RequestHandler is the single entry point of the interception
// boundary: every intercepted request yields exactly one response,
// possibly served from storage, possibly synthesized.
type RequestHandler interface {
	Handle(ctx context.Context, request *Request) *Response
}
