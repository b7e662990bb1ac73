// Package classify assigns a category.Category to extracted document text.
//
// A Classifier sends the text together with a fixed instruction listing the
// taxonomy to a Completer, and maps whatever label comes back onto the
// closed category set. The mapping is total: empty input, service failures,
// timeouts and labels outside the taxonomy all yield category.Uncategorized.
//
// OpenAICompleter is the production Completer and talks to any OpenAI
// compatible chat completions endpoint.
package classify
