package logs

import "github.com/reusee/dscope"

type Module struct {
	dscope.Module
}

// Span identifies one logical operation across log records.
type Span string

type spanKey struct{}

var SpanKey spanKey
