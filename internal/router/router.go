// Package router maps a prefix-stripped request path to an API operation.
package router

import (
	"llm-gateway-go/internal/model"
)

// routes is matched exactly and case-sensitively.
var routes = map[string]model.Operation{
	"/v1/chat/completions": model.OpChatCompletion,
	"/v1/completions":      model.OpCompletion,
	"/v1/models":           model.OpListModels,
}

// NotFoundError is returned when no operation matches a path.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return "no resource found at " + model.EscapePath(e.Path)
}

// Route returns the operation for path. The method is not part of the match;
// upstreams reject methods they do not support.
func Route(_ string, path string) (model.Operation, error) {
	if op, ok := routes[path]; ok {
		return op, nil
	}
	return model.OpUnknown, &NotFoundError{Path: path}
}
