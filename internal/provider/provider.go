// Package provider defines the external capability interfaces the pipeline
// consumes (text generation, image generation, web search, contractor
// lookup) and HTTP adapters for each. Every call is independent and may fail
// or time out without affecting siblings.
package provider

import "context"

// ChatMessage is one prompt message for the text generation capability.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TextGenerator produces assistant text. Stream returns chunks in generation
// order on a single-producer channel; the error channel carries at most one
// error and both channels are closed when generation settles.
type TextGenerator interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
	Stream(ctx context.Context, messages []ChatMessage) (<-chan string, <-chan error)
}

// ImageGenerator renders images for a prompt and returns their locators.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, style string) ([]ImageResult, error)
}

// WebSearcher performs grounded web/product search. May return empty.
type WebSearcher interface {
	Search(ctx context.Context, query, regionHint string) ([]SearchResult, error)
}

// PlacesFinder looks up nearby contractors for a job type. May return empty.
type PlacesFinder interface {
	FindNearby(ctx context.Context, jobType, location string) ([]ContractorResult, error)
}

// Tool results are a tagged union: one fixed-field type per tool kind, so the
// enricher's fan-in stays type-safe instead of passing untyped maps around.

type ImageResult struct {
	Locator string `json:"locator"`
	Prompt  string `json:"prompt,omitempty"`
	Style   string `json:"style,omitempty"`
}

type SearchResult struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Price  string `json:"price,omitempty"`
	Source string `json:"source,omitempty"`
}

type VideoResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Channel string `json:"channel,omitempty"`
}

type ContractorResult struct {
	Name    string  `json:"name"`
	Locator string  `json:"locator"`
	Rating  float64 `json:"rating,omitempty"`
	Contact string  `json:"contact,omitempty"`
}
