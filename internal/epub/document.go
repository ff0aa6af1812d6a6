// Package epub assembles scraped chapters into an EPUB container.
package epub

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"net/http"

	goepub "github.com/go-shiori/go-epub"

	"github.com/JakeFAU/serial-epub/internal/story"
)

//go:embed stylesheet.css
var defaultStylesheet string

const (
	stylesheetFile = "stylesheet.css"
	contentsFile   = "contents.xhtml"
	contentsTitle  = "Table of Contents"
)

var contentsTemplate = template.Must(template.New("contents").Parse(
	`<h1>` + contentsTitle + `</h1>
<nav><ol>{{range .}}
<li><a href="{{.File}}">{{.Title}}</a></li>{{end}}
</ol></nav>`))

// Option customizes a Document.
type Option func(*options)

type options struct {
	stylesheet string
	language   string
	identifier string
}

// WithStylesheet replaces the default stylesheet.
func WithStylesheet(css string) Option {
	return func(o *options) { o.stylesheet = css }
}

// WithLanguage sets the dc:language metadata.
func WithLanguage(lang string) Option {
	return func(o *options) { o.language = lang }
}

// WithIdentifier sets the unique book identifier, e.g. "urn:uuid:...".
func WithIdentifier(id string) Option {
	return func(o *options) { o.identifier = id }
}

type chapterEntry struct {
	Title string
	File  string
	Body  string
}

// Document is an append-only EPUB under construction. It is not safe for
// concurrent use; a single goroutine owns it until Finalize.
type Document struct {
	book      *goepub.Epub
	cssPath   string
	chapters  []chapterEntry
	hasCover  bool
	finalized bool
}

// New starts a document with the story metadata and stylesheet.
func New(title, author, description string, opts ...Option) (*Document, error) {
	o := options{stylesheet: defaultStylesheet, language: "en"}
	for _, opt := range opts {
		opt(&o)
	}
	book, err := goepub.NewEpub(title)
	if err != nil {
		return nil, fmt.Errorf("%w: new epub: %w", story.ErrAssembly, err)
	}
	book.SetAuthor(author)
	book.SetDescription(description)
	book.SetLang(o.language)
	if o.identifier != "" {
		book.SetIdentifier(o.identifier)
	}
	cssPath, err := book.AddCSS(dataURL("text/css", []byte(o.stylesheet)), stylesheetFile)
	if err != nil {
		return nil, fmt.Errorf("%w: add stylesheet: %w", story.ErrAssembly, err)
	}
	return &Document{book: book, cssPath: cssPath}, nil
}

// SetCover adds the cover image and its cover page. Only JPEG and PNG are
// accepted; an empty mimeType is sniffed from data. On error nothing is added.
func (d *Document) SetCover(data []byte, mimeType string) error {
	if d.hasCover {
		return fmt.Errorf("%w: cover already set", story.ErrAssembly)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	mimeType = normalizeMIME(mimeType)
	ext, ok := coverExt[mimeType]
	if !ok {
		return fmt.Errorf("%w: cover type %q (want image/jpeg or image/png)", story.ErrUnsupportedFormat, mimeType)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty cover image", story.ErrUnsupportedFormat)
	}
	imgPath, err := d.book.AddImage(dataURL(mimeType, data), "cover."+ext)
	if err != nil {
		return fmt.Errorf("%w: add cover image: %w", story.ErrAssembly, err)
	}
	if err := d.book.SetCover(imgPath, ""); err != nil {
		return fmt.Errorf("%w: set cover: %w", story.ErrAssembly, err)
	}
	d.hasCover = true
	return nil
}

// HasCover reports whether a cover was added.
func (d *Document) HasCover() bool {
	return d.hasCover
}

// Len returns the number of chapters appended so far.
func (d *Document) Len() int {
	return len(d.chapters)
}

// AppendChapter adds the next chapter. index must equal Len(); anything else
// is a programming error and panics.
func (d *Document) AppendChapter(index int, title, fragment string) error {
	if index != len(d.chapters) {
		panic(fmt.Sprintf("epub: chapter %d appended out of order, want %d", index, len(d.chapters)))
	}
	if d.finalized {
		return fmt.Errorf("%w: document already finalized", story.ErrAssembly)
	}
	d.chapters = append(d.chapters, chapterEntry{
		Title: title,
		File:  fmt.Sprintf("chapter_%d.xhtml", index),
		Body:  fragment,
	})
	return nil
}

// Finalize writes the table of contents and chapters and serializes the
// container to w. It may be called once.
func (d *Document) Finalize(w io.Writer) (int64, error) {
	if d.finalized {
		return 0, fmt.Errorf("%w: document already finalized", story.ErrAssembly)
	}
	d.finalized = true

	var contents bytes.Buffer
	if err := contentsTemplate.Execute(&contents, d.chapters); err != nil {
		return 0, fmt.Errorf("%w: render contents: %w", story.ErrAssembly, err)
	}
	if _, err := d.book.AddSection(contents.String(), contentsTitle, contentsFile, d.cssPath); err != nil {
		return 0, fmt.Errorf("%w: add contents: %w", story.ErrAssembly, err)
	}
	for _, ch := range d.chapters {
		if _, err := d.book.AddSection(ch.Body, ch.Title, ch.File, d.cssPath); err != nil {
			return 0, fmt.Errorf("%w: add %s: %w", story.ErrAssembly, ch.File, err)
		}
	}
	n, err := d.book.WriteTo(w)
	if err != nil {
		return n, fmt.Errorf("%w: write epub: %w", story.ErrAssembly, err)
	}
	return n, nil
}

func dataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
