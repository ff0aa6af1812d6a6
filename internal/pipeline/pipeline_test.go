package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/serial-epub/internal/progress"
	"github.com/JakeFAU/serial-epub/internal/story"
)

func TestRunDeliversInIndexOrder(t *testing.T) {
	t.Parallel()

	for n := 1; n <= 8; n++ {
		for c := 1; c <= n; c++ {
			t.Run(fmt.Sprintf("n=%d/c=%d", n, c), func(t *testing.T) {
				t.Parallel()

				rng := rand.New(rand.NewPCG(uint64(n), uint64(c)))
				delays := make(map[string]time.Duration, n)
				chapters := makeChapters(n)
				for _, ch := range chapters {
					delays[ch.Link] = time.Duration(rng.IntN(4)) * time.Millisecond
				}
				loader := newFakeLoader(func(ch story.Chapter) (string, error) {
					time.Sleep(delays[ch.Link])
					return "content " + ch.Link, nil
				})

				results, err := New(loader, c, nil, nil).Collect(context.Background(), chapters)
				require.NoError(t, err)
				require.Len(t, results, n)
				for i, res := range results {
					assert.Equal(t, i, res.Index)
					assert.Equal(t, chapters[i], res.Chapter)
					assert.Equal(t, "content "+chapters[i].Link, res.Content)
				}
				assert.EqualValues(t, n, loader.calls.Load())
				assert.LessOrEqual(t, loader.peak.Load(), int64(c))
			})
		}
	}
}

func TestRunFailureAtIndex(t *testing.T) {
	t.Parallel()

	const n = 6
	boom := errors.New("boom")
	for k := 0; k < n; k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			t.Parallel()

			chapters := makeChapters(n)
			loader := newFakeLoader(func(ch story.Chapter) (string, error) {
				if ch.Link == chapters[k].Link {
					return "", fmt.Errorf("%w: %w", story.ErrNetwork, boom)
				}
				time.Sleep(time.Millisecond)
				return "ok", nil
			})

			var delivered []int
			err := New(loader, 3, nil, nil).Run(context.Background(), chapters, func(res story.ChapterResult) error {
				delivered = append(delivered, res.Index)
				return nil
			})

			var chErr *story.ChapterError
			require.ErrorAs(t, err, &chErr)
			assert.Equal(t, k, chErr.Index)
			assert.Equal(t, chapters[k].Name, chErr.Name)
			require.ErrorIs(t, err, story.ErrNetwork)
			require.ErrorIs(t, err, boom)
			assert.Equal(t, indices(k), delivered)
		})
	}
}

func TestRunReportsFirstFailureByIndex(t *testing.T) {
	t.Parallel()

	chapters := makeChapters(5)
	loader := newFakeLoader(func(ch story.Chapter) (string, error) {
		switch ch.Link {
		case chapters[1].Link:
			time.Sleep(30 * time.Millisecond)
			return "", errors.New("slow failure")
		case chapters[3].Link:
			return "", errors.New("fast failure")
		default:
			return "ok", nil
		}
	})

	var delivered []int
	err := New(loader, 4, nil, nil).Run(context.Background(), chapters, func(res story.ChapterResult) error {
		delivered = append(delivered, res.Index)
		return nil
	})

	var chErr *story.ChapterError
	require.ErrorAs(t, err, &chErr)
	assert.Equal(t, 1, chErr.Index)
	assert.Contains(t, err.Error(), "slow failure")
	assert.Equal(t, []int{0}, delivered)
}

func TestRunStopsAdmissionAfterFailure(t *testing.T) {
	t.Parallel()

	const concurrency = 2
	chapters := makeChapters(20)
	loader := newFakeLoader(func(ch story.Chapter) (string, error) {
		if ch.Link == chapters[0].Link {
			return "", errors.New("boom")
		}
		time.Sleep(5 * time.Millisecond)
		return "ok", nil
	})

	_, err := New(loader, concurrency, nil, nil).Collect(context.Background(), chapters)
	require.Error(t, err)
	assert.LessOrEqual(t, loader.calls.Load(), int64(concurrency+1))
}

func TestRunRejectsNonPositiveConcurrency(t *testing.T) {
	t.Parallel()

	for _, c := range []int{0, -1} {
		loader := newFakeLoader(func(story.Chapter) (string, error) { return "ok", nil })
		_, err := New(loader, c, nil, nil).Collect(context.Background(), makeChapters(3))
		require.ErrorIs(t, err, story.ErrConfig)
		assert.Zero(t, loader.calls.Load())
	}
}

func TestRunEmptyChapterList(t *testing.T) {
	t.Parallel()

	loader := newFakeLoader(func(story.Chapter) (string, error) { return "ok", nil })
	results, err := New(loader, 5, nil, nil).Collect(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Zero(t, loader.calls.Load())
}

func TestRunDeliverErrorAborts(t *testing.T) {
	t.Parallel()

	chapters := makeChapters(10)
	loader := newFakeLoader(func(story.Chapter) (string, error) { return "ok", nil })
	sinkErr := errors.New("assembler full")

	var delivered []int
	err := New(loader, 2, nil, nil).Run(context.Background(), chapters, func(res story.ChapterResult) error {
		delivered = append(delivered, res.Index)
		if res.Index == 2 {
			return sinkErr
		}
		return nil
	})

	var chErr *story.ChapterError
	require.ErrorAs(t, err, &chErr)
	assert.Equal(t, 2, chErr.Index)
	require.ErrorIs(t, err, sinkErr)
	assert.Equal(t, []int{0, 1, 2}, delivered)
}

func TestRunParentCancel(t *testing.T) {
	t.Parallel()

	loader := newFakeLoader(func(story.Chapter) (string, error) { return "ok", nil })
	loader.block = true

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := New(loader, 2, nil, nil).Collect(ctx, makeChapters(4))
	require.ErrorIs(t, err, context.Canceled)
	var chErr *story.ChapterError
	require.ErrorAs(t, err, &chErr)
	assert.Equal(t, 0, chErr.Index)
}

func TestRunEmitsChapterDone(t *testing.T) {
	t.Parallel()

	events := &captureEmitter{}
	loader := newFakeLoader(func(story.Chapter) (string, error) { return "abc", nil })
	_, err := New(loader, 3, events, nil).Collect(context.Background(), makeChapters(3))
	require.NoError(t, err)

	got := events.Events()
	require.Len(t, got, 3)
	for i, evt := range got {
		assert.Equal(t, progress.StageChapterDone, evt.Stage)
		assert.Equal(t, i, evt.Index)
		assert.EqualValues(t, 3, evt.Bytes)
	}
}

func makeChapters(n int) []story.Chapter {
	chapters := make([]story.Chapter, n)
	for i := range chapters {
		chapters[i] = story.Chapter{
			Name: fmt.Sprintf("Chapter %d", i+1),
			Link: fmt.Sprintf("/fiction/1/story/chapter/%d/c", 100+i),
		}
	}
	return chapters
}

func indices(n int) []int {
	if n == 0 {
		return nil
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

type fakeLoader struct {
	fn       func(story.Chapter) (string, error)
	block    bool
	calls    atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

func newFakeLoader(fn func(story.Chapter) (string, error)) *fakeLoader {
	return &fakeLoader{fn: fn}
}

func (f *fakeLoader) LoadChapter(ctx context.Context, ch story.Chapter) (string, error) {
	f.calls.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		old := f.peak.Load()
		if cur <= old || f.peak.CompareAndSwap(old, cur) {
			break
		}
	}
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.fn(ch)
}

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (c *captureEmitter) Emit(evt progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureEmitter) Events() []progress.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]progress.Event(nil), c.events...)
}
