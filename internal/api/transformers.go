package api

import "github.com/danielgtaylor/huma/v2"

// Transformers returns the response transformers registered with the Huma config.
// They run in order on every response after the handler and before serialization,
// and must pass through response bodies they do not recognize.
//
// Current transformers:
//   - toolFieldSelectTransformer: trims handler listings to the fields selected by ?detail=.
func Transformers() []huma.Transformer {
	return []huma.Transformer{
		toolFieldSelectTransformer,
	}
}
