// Package collyfetcher implements story.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/serial-epub/internal/fetcher"
	"github.com/JakeFAU/serial-epub/internal/progress"
	"github.com/JakeFAU/serial-epub/internal/story"
)

// DefaultUserAgent identifies requests when Config.UserAgent is empty.
const DefaultUserAgent = "serial-epub/1.0"

// Config controls collector behavior.
type Config struct {
	// BaseURL is the origin relative links resolve against.
	BaseURL   string
	UserAgent string
	// Timeout bounds each request; zero disables it.
	Timeout time.Duration
}

// Fetcher implements story.Fetcher using the Colly collector. It is safe for
// concurrent use; each call runs on its own clone of the base collector.
type Fetcher struct {
	origin        fetcher.Origin
	baseCollector *colly.Collector
	events        progress.Emitter
	logger        *zap.Logger
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// visit is owned by the goroutine running Visit until it is sent back.
type visit struct {
	res    story.Resource
	status int
	err    error
}

// New builds a Fetcher. A nil emitter or logger disables that output.
func New(cfg Config, events progress.Emitter, logger *zap.Logger) (*Fetcher, error) {
	origin, err := fetcher.NewOrigin(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("%w: fetch timeout must be >= 0", story.ErrConfig)
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if events == nil {
		events = progress.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.UserAgent(userAgent),
		colly.MaxBodySize(0),
	)
	// Clones share the backend, so transport and timeout are set once here.
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		origin:        origin,
		baseCollector: c,
		events:        events,
		logger:        logger,
	}, nil
}

// Fetch executes a single HTTP GET. Transport failures and non-success
// statuses are reported as story.ErrNetwork.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (story.Resource, error) {
	target, err := f.origin.Resolve(rawURL)
	if err != nil {
		return story.Resource{}, err
	}

	start := time.Now()
	v := f.runCollector(ctx, f.baseCollector.Clone(), target)
	f.emitFetch(ctx, target, v, time.Since(start))

	if v.err != nil {
		if v.status != 0 {
			return story.Resource{}, fmt.Errorf("%w: GET %s: status %d", story.ErrNetwork, target, v.status)
		}
		return story.Resource{}, fmt.Errorf("%w: GET %s: %w", story.ErrNetwork, target, v.err)
	}
	f.logger.Debug("fetched",
		zap.String("url", target),
		zap.Int("status", v.status),
		zap.Int("bytes", len(v.res.Body)),
	)
	return v.res, nil
}

// FetchText fetches rawURL and decodes the body to UTF-8.
func (f *Fetcher) FetchText(ctx context.Context, rawURL string) (string, error) {
	res, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	text, err := fetcher.DecodeBody(res.Body, res.ContentType)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", res.URL, err)
	}
	return text, nil
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, v *visit) {
	hooks.OnResponse(func(r *colly.Response) {
		headers := http.Header{}
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		v.status = r.StatusCode
		v.res = story.Resource{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: headers.Get("Content-Type"),
			Headers:     headers,
			Body:        append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			v.status = r.StatusCode
		}
		v.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, target string) visit {
	done := make(chan visit, 1)
	go func() {
		var v visit
		f.configureCollectorHooks(collector, &v)
		if err := collector.Visit(target); err != nil && v.err == nil {
			v.err = err
		}
		done <- v
	}()

	select {
	case <-ctx.Done():
		return visit{err: fmt.Errorf("colly fetch canceled: %w", ctx.Err())}
	case v := <-done:
		return v
	}
}

func (f *Fetcher) emitFetch(ctx context.Context, target string, v visit, dur time.Duration) {
	evt := progress.Event{
		Stage:       progress.StageFetchDone,
		Site:        fetcher.Site(target),
		URL:         target,
		Bytes:       int64(len(v.res.Body)),
		StatusClass: progress.ClassifyStatus(v.status),
		Dur:         dur,
	}
	if v.err != nil {
		evt.Note = v.err.Error()
	}
	progress.EmitterFrom(ctx, f.events).Emit(evt)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
}
