package fetcher

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/net/html/charset"

	"github.com/JakeFAU/serial-epub/internal/story"
)

// DecodeBody converts an HTML body to UTF-8 text. Bodies that are already
// valid UTF-8 are returned as is; otherwise the encoding is taken from the
// Content-Type header, a BOM, or a <meta> charset declaration.
func DecodeBody(body []byte, contentType string) (string, error) {
	if utf8.Valid(body) {
		return string(body), nil
	}
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" {
		return "", fmt.Errorf("%w: body is not valid utf-8", story.ErrDecode)
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", fmt.Errorf("%w: decode %s body: %w", story.ErrDecode, name, err)
	}
	if !utf8.Valid(out) {
		return "", fmt.Errorf("%w: %s body did not decode to utf-8", story.ErrDecode, name)
	}
	return string(out), nil
}
