package story

import "context"

// PageFetcher retrieves an HTML page as UTF-8 text. Relative links are resolved
// against the fetcher's base origin.
type PageFetcher interface {
	FetchText(ctx context.Context, rawURL string) (string, error)
}

// Fetcher retrieves raw resources (e.g. cover images) as well as pages.
type Fetcher interface {
	PageFetcher
	Fetch(ctx context.Context, rawURL string) (Resource, error)
}

// ChapterLoader fetches a chapter page and returns its content fragment.
type ChapterLoader interface {
	LoadChapter(ctx context.Context, chapter Chapter) (string, error)
}
