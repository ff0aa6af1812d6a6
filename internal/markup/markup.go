// Package markup extracts named fields and repeated records from HTML using
// CSS selectors. A missing required node or attribute is always an error.
package markup

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/serial-epub/internal/story"
)

// FieldRule locates a single scalar value.
type FieldRule struct {
	// Name identifies the field in errors (e.g. "title").
	Name string
	// Selector picks the node. Inside a RecordRule an empty selector means the
	// row node itself.
	Selector string
	// Attr is the attribute to read verbatim. Empty means the node's trimmed text.
	Attr string
}

// RecordRule locates a container and extracts one Record per matching row.
type RecordRule struct {
	Name              string
	ContainerSelector string
	RowSelector       string
	Fields            []FieldRule
}

// Record maps field names to extracted values for one row.
type Record map[string]string

// Document is a parsed HTML page.
type Document struct {
	doc *goquery.Document
}

// Parse parses an HTML document once for repeated extraction.
func Parse(html string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{doc: doc}, nil
}

// Field returns the value of the first node matching the rule.
func (d *Document) Field(rule FieldRule) (string, error) {
	return extract(d.doc.Selection, rule)
}

// Records returns one Record per row inside the first container match, in
// document order.
func (d *Document) Records(rule RecordRule) ([]Record, error) {
	container := d.doc.Find(rule.ContainerSelector).First()
	if container.Length() == 0 {
		return nil, &story.FieldError{Field: rule.Name, Selector: rule.ContainerSelector}
	}

	rows := container.Find(rule.RowSelector)
	records := make([]Record, 0, rows.Length())
	var rowErr error
	rows.EachWithBreak(func(i int, row *goquery.Selection) bool {
		rec := make(Record, len(rule.Fields))
		for _, field := range rule.Fields {
			value, err := extract(row, field)
			if err != nil {
				rowErr = fmt.Errorf("%s row %d: %w", rule.Name, i, err)
				return false
			}
			rec[field.Name] = value
		}
		records = append(records, rec)
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}
	return records, nil
}

// Fragment returns the outer HTML of the first node matching selector.
func (d *Document) Fragment(name, selector string) (string, error) {
	sel := d.doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", &story.FieldError{Field: name, Selector: selector}
	}
	html, err := goquery.OuterHtml(sel)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return html, nil
}

func extract(scope *goquery.Selection, rule FieldRule) (string, error) {
	node := scope
	if rule.Selector != "" {
		node = scope.Find(rule.Selector).First()
	}
	if node.Length() == 0 {
		return "", &story.FieldError{Field: rule.Name, Selector: rule.Selector}
	}
	if rule.Attr == "" {
		return strings.TrimSpace(node.Text()), nil
	}
	value, ok := node.Attr(rule.Attr)
	if !ok {
		return "", &story.FieldError{
			Field:    rule.Name,
			Selector: rule.Selector,
			Reason:   fmt.Sprintf("missing %s attribute", rule.Attr),
		}
	}
	return value, nil
}
