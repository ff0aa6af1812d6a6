package epub

import (
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// coverExt maps the supported cover types to their file extension.
var coverExt = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
}

// normalizeMIME strips parameters and folds known aliases.
func normalizeMIME(value string) string {
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(value))
	}
	switch mediaType {
	case "image/jpg", "image/pjpeg":
		return "image/jpeg"
	default:
		return mediaType
	}
}

// CoverMIME picks the media type of a fetched cover image: the response
// Content-Type when it names an image, then the URL extension, then sniffing.
func CoverMIME(contentType, rawURL string, data []byte) string {
	if mt := normalizeMIME(contentType); strings.HasPrefix(mt, "image/") {
		return mt
	}
	if u, err := url.Parse(rawURL); err == nil {
		switch strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), ".")) {
		case "jpg", "jpeg":
			return "image/jpeg"
		case "png":
			return "image/png"
		}
	}
	return normalizeMIME(http.DetectContentType(data))
}
