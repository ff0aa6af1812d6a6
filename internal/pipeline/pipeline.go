// Package pipeline fetches chapters with a bounded window of concurrent
// loaders and delivers the results strictly in chapter order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/serial-epub/internal/progress"
	"github.com/JakeFAU/serial-epub/internal/story"
)

// DeliverFunc receives each chapter in ascending index order. Returning an
// error aborts the run.
type DeliverFunc func(story.ChapterResult) error

// Pipeline runs a story.ChapterLoader over an ordered chapter list.
type Pipeline struct {
	loader      story.ChapterLoader
	concurrency int
	events      progress.Emitter
	logger      *zap.Logger
}

// New builds a Pipeline that keeps at most concurrency loads in flight. The
// concurrency is validated by Run so that a bad value fails before any fetch.
func New(loader story.ChapterLoader, concurrency int, events progress.Emitter, logger *zap.Logger) *Pipeline {
	if events == nil {
		events = progress.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		loader:      loader,
		concurrency: concurrency,
		events:      events,
		logger:      logger,
	}
}

// outcome is written exactly once into its chapter's slot.
type outcome struct {
	content string
	err     error
}

// run holds the state of one Run call.
type run struct {
	p        *Pipeline
	chapters []story.Chapter
	slots    []chan outcome
	// halted stops admission once any load has failed.
	halted atomic.Bool
}

// Run loads every chapter and calls deliver for each in ascending index order.
// Loads are admitted in input order as window slots free up. The first
// failure by index aborts the run: admission stops, in-flight loads are
// cancelled and their results discarded, and nothing at or after the failing
// index is delivered. The returned error is a *story.ChapterError.
func (p *Pipeline) Run(ctx context.Context, chapters []story.Chapter, deliver DeliverFunc) error {
	if p.concurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be at least 1, got %d", story.ErrConfig, p.concurrency)
	}
	if p.loader == nil || deliver == nil {
		return fmt.Errorf("%w: pipeline requires a loader and a deliver func", story.ErrConfig)
	}
	if len(chapters) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &run{
		p:        p,
		chapters: chapters,
		slots:    make([]chan outcome, len(chapters)),
	}
	for i := range r.slots {
		r.slots[i] = make(chan outcome, 1)
	}

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	admitted := make(chan struct{})
	go func() {
		defer close(admitted)
		r.admit(ctx, &g)
	}()
	defer func() {
		cancel()
		<-admitted
		_ = g.Wait()
	}()

	return r.consume(ctx, deliver)
}

// Collect runs the pipeline and returns all results in index order.
func (p *Pipeline) Collect(ctx context.Context, chapters []story.Chapter) ([]story.ChapterResult, error) {
	results := make([]story.ChapterResult, 0, len(chapters))
	err := p.Run(ctx, chapters, func(res story.ChapterResult) error {
		results = append(results, res)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// admit starts one load per chapter in index order; g.Go blocks while the
// window is full.
func (r *run) admit(ctx context.Context, g *errgroup.Group) {
	for i := range r.chapters {
		if r.halted.Load() || ctx.Err() != nil {
			return
		}
		g.Go(func() error {
			r.slots[i] <- r.load(ctx, i)
			return nil
		})
	}
}

func (r *run) load(ctx context.Context, index int) outcome {
	if err := ctx.Err(); err != nil {
		return outcome{err: err}
	}
	chapter := r.chapters[index]
	r.p.logger.Info("fetching chapter", zap.Int("index", index), zap.String("name", chapter.Name))
	content, err := r.p.loader.LoadChapter(ctx, chapter)
	if err != nil {
		// Every lower index is already admitted, so nothing after this one is needed.
		r.halted.Store(true)
		return outcome{err: err}
	}
	return outcome{content: content}
}

// consume waits on each slot in turn so delivery order equals input order.
func (r *run) consume(ctx context.Context, deliver DeliverFunc) error {
	for i, chapter := range r.chapters {
		var out outcome
		select {
		case out = <-r.slots[i]:
		case <-ctx.Done():
			out = outcome{err: ctx.Err()}
		}
		if out.err != nil {
			r.halted.Store(true)
			return r.fail(i, out.err)
		}
		if err := deliver(story.ChapterResult{Index: i, Chapter: chapter, Content: out.content}); err != nil {
			r.halted.Store(true)
			return r.fail(i, fmt.Errorf("deliver: %w", err))
		}
		r.p.events.Emit(progress.Event{
			Stage: progress.StageChapterDone,
			Index: i,
			URL:   chapter.Link,
			Bytes: int64(len(out.content)),
		})
	}
	return nil
}

func (r *run) fail(index int, err error) error {
	level := r.p.logger.Error
	if errors.Is(err, context.Canceled) {
		level = r.p.logger.Warn
	}
	level("chapter failed", zap.Int("index", index), zap.String("name", r.chapters[index].Name), zap.Error(err))
	return &story.ChapterError{Index: index, Name: r.chapters[index].Name, Err: err}
}
