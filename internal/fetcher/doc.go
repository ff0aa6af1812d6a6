// Package fetcher holds the helpers shared by the page fetchers: resolving
// chapter links against the site origin, labelling hosts for metrics, and
// decoding response bodies to UTF-8.
package fetcher
