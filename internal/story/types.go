package story

import "net/http"

// Chapter is one row of the landing page's chapter index table. Its identity is
// its position in Story.Chapters.
type Chapter struct {
	Name string `json:"name"`
	// Link is the raw href from the index table; it may be page-relative.
	Link string `json:"link"`
}

// Story is the metadata and ordered chapter index scraped from a landing page.
type Story struct {
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Description string    `json:"description"`
	Cover       string    `json:"cover"`
	Chapters    []Chapter `json:"chapters"`
}

// ChapterResult is a fetched chapter ready for assembly.
type ChapterResult struct {
	Index   int
	Chapter Chapter
	// Content is the outer HTML of the chapter's content fragment.
	Content string
}

// Resource is the result of fetching a URL.
type Resource struct {
	URL         string
	StatusCode  int
	ContentType string
	Headers     http.Header
	Body        []byte
}
