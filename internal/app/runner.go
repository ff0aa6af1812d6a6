package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/serial-epub/internal/epub"
	"github.com/JakeFAU/serial-epub/internal/hash/sha256"
	idgen "github.com/JakeFAU/serial-epub/internal/id/uuid"
	"github.com/JakeFAU/serial-epub/internal/pipeline"
	"github.com/JakeFAU/serial-epub/internal/progress"
	"github.com/JakeFAU/serial-epub/internal/storage"
	"github.com/JakeFAU/serial-epub/internal/story"
)

// EPUBContentType is the media type of the written artifact.
const EPUBContentType = "application/epub+zip"

// StoryResolver scrapes the landing page and individual chapters.
type StoryResolver interface {
	Resolve(ctx context.Context, landingURL string) (story.Story, error)
	story.ChapterLoader
}

// IDGenerator creates run identifiers.
type IDGenerator interface {
	NewRunID() (uuid.UUID, error)
}

// OpenFunc resolves an --out value to a destination.
type OpenFunc func(ctx context.Context, out string) (*storage.Output, error)

// Deps are the collaborators of a Runner. Events, Clock and Logger are optional.
type Deps struct {
	Resolver StoryResolver
	// Resources fetches the cover image.
	Resources story.Fetcher
	Open      OpenFunc
	IDs       IDGenerator
	Clock     progress.Clock
	Events    progress.Emitter
	Logger    *zap.Logger
}

// Request describes one run.
type Request struct {
	URL         string
	Out         string
	Concurrency int
}

// Result summarizes a successful run.
type Result struct {
	RunID    uuid.UUID
	URI      string
	Title    string
	Chapters int
	Bytes    int64
	SHA256   string
	Duration time.Duration
}

// Runner executes the scrape and assemble flow for one story.
type Runner struct {
	deps Deps
}

// NewRunner builds a Runner, filling optional dependencies with defaults.
func NewRunner(deps Deps) *Runner {
	if deps.Events == nil {
		deps.Events = progress.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.IDs == nil {
		deps.IDs = idgen.New()
	}
	if deps.Open == nil {
		deps.Open = func(ctx context.Context, out string) (*storage.Output, error) {
			return storage.Open(ctx, out)
		}
	}
	return &Runner{deps: deps}
}

// Run resolves the story, fetches the cover and chapters, assembles the EPUB
// and commits it to req.Out. Nothing is written unless every step succeeds.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	if req.Concurrency <= 0 {
		return Result{}, fmt.Errorf("%w: concurrency must be at least 1, got %d", story.ErrConfig, req.Concurrency)
	}
	if req.URL == "" || req.Out == "" {
		return Result{}, fmt.Errorf("%w: url and out are required", story.ErrConfig)
	}
	runID, err := r.deps.IDs.NewRunID()
	if err != nil {
		return Result{}, fmt.Errorf("new run id: %w", err)
	}
	rec := progress.NewRecorder(runID, r.deps.Events, r.deps.Clock)
	logger := r.deps.Logger.With(zap.Stringer("run_id", runID))
	ctx = progress.WithEmitter(ctx, rec)
	start := r.now()
	rec.Emit(progress.Event{Stage: progress.StageRunStart, URL: req.URL})

	res, err := r.run(ctx, req, runID, rec, logger)
	res.Duration = r.now().Sub(start)
	if err != nil {
		rec.Emit(progress.Event{Stage: progress.StageRunError, URL: req.URL, Dur: res.Duration, Note: err.Error()})
		logger.Error("run failed", zap.Error(err), zap.Duration("dur", res.Duration))
		return Result{}, err
	}
	rec.Emit(progress.Event{Stage: progress.StageRunDone, URL: res.URI, Bytes: res.Bytes, Dur: res.Duration})
	logger.Info("epub written",
		zap.String("uri", res.URI),
		zap.Int("chapters", res.Chapters),
		zap.Int64("bytes", res.Bytes),
		zap.String("sha256", res.SHA256),
		zap.Duration("dur", res.Duration),
	)
	return res, nil
}

func (r *Runner) run(
	ctx context.Context,
	req Request,
	runID uuid.UUID,
	rec *progress.Recorder,
	logger *zap.Logger,
) (Result, error) {
	out, err := r.deps.Open(ctx, req.Out)
	if err != nil {
		return Result{}, fmt.Errorf("%w: open output: %w", story.ErrConfig, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			logger.Warn("close output", zap.Error(cerr))
		}
	}()

	logger.Info("fetching story", zap.String("url", req.URL))
	s, err := r.deps.Resolver.Resolve(ctx, req.URL)
	if err != nil {
		return Result{}, err
	}
	rec.Emit(progress.Event{Stage: progress.StageStoryFetched, URL: req.URL, Note: s.Title})

	doc, err := epub.New(s.Title, s.Author, s.Description, epub.WithIdentifier(idgen.URN(runID)))
	if err != nil {
		return Result{}, err
	}

	logger.Info("fetching cover", zap.String("url", s.Cover))
	if err := r.addCover(ctx, doc, s.Cover); err != nil {
		return Result{}, err
	}
	rec.Emit(progress.Event{Stage: progress.StageCoverFetched, URL: s.Cover})

	chapters := pipeline.New(r.deps.Resolver, req.Concurrency, rec, logger)
	err = chapters.Run(ctx, s.Chapters, func(res story.ChapterResult) error {
		return doc.AppendChapter(res.Index, res.Chapter.Name, res.Content)
	})
	if err != nil {
		return Result{}, fmt.Errorf("fetch chapters: %w", err)
	}

	logger.Info("generating epub", zap.Int("chapters", doc.Len()))
	rec.Emit(progress.Event{Stage: progress.StageEpubGenerate})
	var buf bytes.Buffer
	digest := sha256.New()
	if _, err := doc.Finalize(io.MultiWriter(&buf, digest)); err != nil {
		return Result{}, err
	}

	uri, err := out.Put(ctx, EPUBContentType, &buf)
	if err != nil {
		return Result{}, fmt.Errorf("%w: store epub: %w", story.ErrAssembly, err)
	}
	return Result{
		RunID:    runID,
		URI:      uri,
		Title:    s.Title,
		Chapters: doc.Len(),
		Bytes:    digest.Size(),
		SHA256:   digest.Sum(),
	}, nil
}

func (r *Runner) addCover(ctx context.Context, doc *epub.Document, coverURL string) error {
	res, err := r.deps.Resources.Fetch(ctx, coverURL)
	if err != nil {
		return fmt.Errorf("fetch cover: %w", err)
	}
	mimeType := epub.CoverMIME(res.ContentType, coverURL, res.Body)
	if err := doc.SetCover(res.Body, mimeType); err != nil {
		return fmt.Errorf("add cover: %w", err)
	}
	return nil
}

func (r *Runner) now() time.Time {
	if r.deps.Clock == nil {
		return time.Now().UTC()
	}
	return r.deps.Clock.Now()
}
