package story

import (
	"errors"
	"fmt"
)

// Error classes. Every one of them is fatal for a run; match with errors.Is.
var (
	// ErrConfig reports invalid user input such as a zero concurrency.
	ErrConfig = errors.New("config error")
	// ErrNetwork reports a transport failure or a non-success HTTP status.
	ErrNetwork = errors.New("network error")
	// ErrDecode reports a body that could not be decoded to UTF-8.
	ErrDecode = errors.New("decode error")
	// ErrExtraction reports a required markup node or attribute that is absent.
	ErrExtraction = errors.New("extraction error")
	// ErrUnsupportedFormat reports a cover image that is neither JPEG nor PNG.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrAssembly reports a failure serializing or storing the EPUB.
	ErrAssembly = errors.New("assembly error")
)

// FieldError names the markup field that could not be extracted.
type FieldError struct {
	Field    string
	Selector string
	Reason   string
}

func (e *FieldError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: could not find %s (%s): %s", ErrExtraction, e.Field, e.Selector, e.Reason)
	}
	return fmt.Sprintf("%s: could not find %s (%s)", ErrExtraction, e.Field, e.Selector)
}

// Unwrap lets errors.Is match ErrExtraction.
func (e *FieldError) Unwrap() error {
	return ErrExtraction
}

// ChapterError ties a failure to the chapter index that produced it.
type ChapterError struct {
	Index int
	Name  string
	Err   error
}

func (e *ChapterError) Error() string {
	return fmt.Sprintf("chapter %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *ChapterError) Unwrap() error {
	return e.Err
}
