package scrape

import "github.com/JakeFAU/serial-epub/internal/markup"

// Field names reported in extraction errors.
const (
	FieldCover        = "cover"
	FieldAuthor       = "author"
	FieldTitle        = "title"
	FieldDescription  = "description"
	FieldChapterTable = "chapter-table"
	FieldContent      = "chapter-content"
)

// Schema locates story metadata and chapter content in a site's markup.
type Schema struct {
	Cover       markup.FieldRule
	Author      markup.FieldRule
	Title       markup.FieldRule
	Description markup.FieldRule
	// Chapters yields records with "name" and "link" fields.
	Chapters markup.RecordRule
	// Content selects the chapter body on a chapter page.
	Content string
}

// RoyalRoad returns the schema for Royal Road fiction pages.
func RoyalRoad() Schema {
	return Schema{
		Cover:       twitterMeta(FieldCover, "twitter:image"),
		Author:      twitterMeta(FieldAuthor, "twitter:creator"),
		Title:       twitterMeta(FieldTitle, "twitter:title"),
		Description: twitterMeta(FieldDescription, "twitter:description"),
		Chapters: markup.RecordRule{
			Name:              FieldChapterTable,
			ContainerSelector: `table[id="chapters"]`,
			RowSelector:       "tbody > tr > td > a",
			Fields: []markup.FieldRule{
				{Name: "name"},
				{Name: "link", Attr: "href"},
			},
		},
		Content: "div.chapter-content",
	}
}

func twitterMeta(field, name string) markup.FieldRule {
	return markup.FieldRule{
		Name:     field,
		Selector: `meta[name="` + name + `"]`,
		Attr:     "content",
	}
}
