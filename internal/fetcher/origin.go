package fetcher

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/serial-epub/internal/story"
)

// DefaultBaseURL is the origin chapter links are resolved against.
const DefaultBaseURL = "https://www.royalroad.com"

// Origin resolves page-relative links against a fixed site origin.
type Origin struct {
	base *url.URL
}

// NewOrigin validates raw as an absolute http(s) URL. An empty raw selects
// DefaultBaseURL.
func NewOrigin(raw string) (Origin, error) {
	if strings.TrimSpace(raw) == "" {
		raw = DefaultBaseURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Origin{}, fmt.Errorf("%w: base url %q: %w", story.ErrConfig, raw, err)
	}
	if !isHTTP(u) {
		return Origin{}, fmt.Errorf("%w: base url %q must be absolute http(s)", story.ErrConfig, raw)
	}
	return Origin{base: u}, nil
}

// String returns the origin URL.
func (o Origin) String() string {
	if o.base == nil {
		return ""
	}
	return o.base.String()
}

// Resolve turns link into an absolute URL. Absolute links pass through with
// the fragment removed; anything else is resolved against the origin.
func (o Origin) Resolve(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", fmt.Errorf("%w: empty url", story.ErrNetwork)
	}
	ref, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("%w: parse url %q: %w", story.ErrNetwork, link, err)
	}
	if !ref.IsAbs() {
		if o.base == nil {
			return "", fmt.Errorf("%w: relative url %q without base", story.ErrNetwork, link)
		}
		ref = o.base.ResolveReference(ref)
	}
	if !isHTTP(ref) {
		return "", fmt.Errorf("%w: unsupported url %q", story.ErrNetwork, link)
	}
	ref.Scheme = strings.ToLower(ref.Scheme)
	ref.Host = strings.ToLower(ref.Host)
	ref.Fragment = ""
	return ref.String(), nil
}

// Site returns the lowercased host of rawURL for metric labels.
func Site(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

func isHTTP(u *url.URL) bool {
	if u == nil || u.Host == "" {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}
