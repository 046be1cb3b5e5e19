// Package webui holds the browser autocomplete page served next to the API.
package webui

import (
	_ "embed"
)

//go:embed static/index.html
var index string

// Index returns the single page. It talks to /v1/models and /v1/completions
// on the same origin.
func Index() string {
	return index
}
