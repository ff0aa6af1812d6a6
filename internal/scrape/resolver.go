// Package scrape turns fetched pages into a story.Story and chapter fragments.
package scrape

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/serial-epub/internal/markup"
	"github.com/JakeFAU/serial-epub/internal/story"
)

// Resolver scrapes landing and chapter pages with a Schema.
type Resolver struct {
	pages  story.PageFetcher
	schema Schema
	logger *zap.Logger
}

// NewResolver builds a Resolver. A nil logger is replaced with a no-op.
func NewResolver(pages story.PageFetcher, schema Schema, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{pages: pages, schema: schema, logger: logger}
}

// StoryURL strips a chapter path so that a chapter link resolves to its story.
func StoryURL(landingURL string) string {
	base, _, _ := strings.Cut(landingURL, "/chapter/")
	return base
}

// Resolve fetches the landing page and extracts the story metadata and the
// chapter index in table order.
func (r *Resolver) Resolve(ctx context.Context, landingURL string) (story.Story, error) {
	target := StoryURL(landingURL)
	html, err := r.pages.FetchText(ctx, target)
	if err != nil {
		return story.Story{}, fmt.Errorf("fetch story: %w", err)
	}
	doc, err := markup.Parse(html)
	if err != nil {
		return story.Story{}, fmt.Errorf("%w: story page: %w", story.ErrExtraction, err)
	}

	var s story.Story
	for _, f := range []struct {
		rule markup.FieldRule
		dst  *string
	}{
		{r.schema.Cover, &s.Cover},
		{r.schema.Author, &s.Author},
		{r.schema.Title, &s.Title},
		{r.schema.Description, &s.Description},
	} {
		value, err := doc.Field(f.rule)
		if err != nil {
			return story.Story{}, fmt.Errorf("resolve story: %w", err)
		}
		*f.dst = value
	}

	records, err := doc.Records(r.schema.Chapters)
	if err != nil {
		return story.Story{}, fmt.Errorf("resolve story: %w", err)
	}
	s.Chapters = make([]story.Chapter, 0, len(records))
	for _, rec := range records {
		s.Chapters = append(s.Chapters, story.Chapter{Name: rec["name"], Link: rec["link"]})
	}

	r.logger.Info("story resolved",
		zap.String("url", target),
		zap.String("title", s.Title),
		zap.String("author", s.Author),
		zap.Int("chapters", len(s.Chapters)),
	)
	return s, nil
}

// LoadChapter fetches one chapter page and returns its content fragment.
func (r *Resolver) LoadChapter(ctx context.Context, chapter story.Chapter) (string, error) {
	html, err := r.pages.FetchText(ctx, chapter.Link)
	if err != nil {
		return "", err
	}
	doc, err := markup.Parse(html)
	if err != nil {
		return "", fmt.Errorf("%w: chapter page: %w", story.ErrExtraction, err)
	}
	return doc.Fragment(FieldContent, r.schema.Content)
}
