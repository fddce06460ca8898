package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zhouzirui/survey-runner/backend/internal/model/survey"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type loaderFunc func(ctx context.Context, sessionID string) ([]survey.Page, error)

func (f loaderFunc) LoadTrials(ctx context.Context, sessionID string) ([]survey.Page, error) {
	return f(ctx, sessionID)
}

type rendererFunc func(ctx context.Context, pages []survey.Page) (survey.ResponseMap, error)

func (f rendererFunc) Render(ctx context.Context, pages []survey.Page) (survey.ResponseMap, error) {
	return f(ctx, pages)
}

type persisterFunc func(ctx context.Context, sessionID string, responses survey.ResponseMap) (survey.PersistResult, error)

func (f persisterFunc) Persist(ctx context.Context, sessionID string, responses survey.ResponseMap) (survey.PersistResult, error) {
	return f(ctx, sessionID, responses)
}

func staticLoader(pages ...string) Loader {
	return loaderFunc(func(context.Context, string) ([]survey.Page, error) {
		out := make([]survey.Page, 0, len(pages))
		for _, p := range pages {
			out = append(out, survey.Page(p))
		}
		return out, nil
	})
}

func answering(answers survey.ResponseMap) Renderer {
	return rendererFunc(func(context.Context, []survey.Page) (survey.ResponseMap, error) {
		return answers, nil
	})
}

func okPersister() Persister {
	return persisterFunc(func(context.Context, string, survey.ResponseMap) (survey.PersistResult, error) {
		return survey.PersistResult{Success: true}, nil
	})
}

type recorder struct {
	mu     sync.Mutex
	states []survey.State
}

func (r *recorder) observe(ev survey.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, ev.State)
}

func (r *recorder) snapshot() []survey.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]survey.State(nil), r.states...)
}

func TestRunHappyPath(t *testing.T) {
	rec := &recorder{}
	var persisted survey.ResponseMap
	persister := persisterFunc(func(_ context.Context, sessionID string, responses survey.ResponseMap) (survey.PersistResult, error) {
		require.Equal(t, "s-1", sessionID)
		persisted = responses
		return survey.PersistResult{Success: true}, nil
	})

	s := New("s-1", staticLoader(`{"name":"q1"}`, `{"name":"q2"}`), answering(survey.ResponseMap{"q1": "yes"}), persister, Options{
		Observers: []Observer{rec.observe},
	})

	out, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, out.Pages, 2)
	require.True(t, out.Result.Success)
	require.Equal(t, survey.ResponseMap{"q1": "yes"}, persisted)
	require.Equal(t, survey.StateDone, s.State())
	require.Equal(t, []survey.State{
		survey.StateLoading,
		survey.StateReady,
		survey.StateCollecting,
		survey.StateSubmitting,
		survey.StateDone,
	}, rec.snapshot())
}

func TestRendererWaitsForLoad(t *testing.T) {
	release := make(chan struct{})
	var rendered atomic.Bool

	loader := loaderFunc(func(ctx context.Context, _ string) ([]survey.Page, error) {
		<-release
		return []survey.Page{survey.Page(`{}`)}, nil
	})
	renderer := rendererFunc(func(context.Context, []survey.Page) (survey.ResponseMap, error) {
		rendered.Store(true)
		return survey.ResponseMap{}, nil
	})

	s := New("s", loader, renderer, okPersister(), Options{})
	done := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return s.State() == survey.StateLoading }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.False(t, rendered.Load(), "renderer called before load settled")

	close(release)
	require.NoError(t, <-done)
	require.True(t, rendered.Load())
}

func TestDoneWaitsForPersist(t *testing.T) {
	release := make(chan struct{})
	persister := persisterFunc(func(context.Context, string, survey.ResponseMap) (survey.PersistResult, error) {
		<-release
		return survey.PersistResult{Success: true}, nil
	})

	s := New("s", staticLoader(`{}`), answering(survey.ResponseMap{"q": 1}), persister, Options{})
	done := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return s.State() == survey.StateSubmitting }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, survey.StateSubmitting, s.State())

	close(release)
	require.NoError(t, <-done)
	require.Equal(t, survey.StateDone, s.State())
}

func TestLoadFailureEndsInFailed(t *testing.T) {
	loadErr := errors.New("server unreachable")
	var rendered atomic.Bool
	loader := loaderFunc(func(context.Context, string) ([]survey.Page, error) { return nil, loadErr })
	renderer := rendererFunc(func(context.Context, []survey.Page) (survey.ResponseMap, error) {
		rendered.Store(true)
		return nil, nil
	})

	s := New("s", loader, renderer, okPersister(), Options{})
	_, err := s.Run(context.Background())
	require.ErrorIs(t, err, loadErr)
	require.Equal(t, survey.StateFailed, s.State())
	require.False(t, rendered.Load())
}

func TestPersistFailureStillDone(t *testing.T) {
	saveErr := errors.New("insert failed")
	persister := persisterFunc(func(context.Context, string, survey.ResponseMap) (survey.PersistResult, error) {
		return survey.PersistResult{}, saveErr
	})

	s := New("s", staticLoader(`{}`), answering(survey.ResponseMap{"q": "a"}), persister, Options{})
	out, err := s.Run(context.Background())
	require.ErrorIs(t, err, saveErr)
	require.ErrorIs(t, out.PersistErr, saveErr)
	require.False(t, out.Result.Success)
	require.Equal(t, survey.StateDone, s.State())
}

func TestCloseDuringCollecting(t *testing.T) {
	var hookCalls atomic.Int32
	renderer := rendererFunc(func(ctx context.Context, _ []survey.Page) (survey.ResponseMap, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	s := New("s", staticLoader(`{}`), renderer, okPersister(), Options{
		OnClose: func(context.Context, *Session) error {
			hookCalls.Add(1)
			return nil
		},
	})
	done := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return s.State() == survey.StateCollecting }, time.Second, time.Millisecond)
	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))

	require.ErrorIs(t, <-done, ErrClosed)
	require.Equal(t, survey.StateClosed, s.State())
	require.Equal(t, int32(1), hookCalls.Load())
}

func TestCloseAfterDoneIsNoop(t *testing.T) {
	var hookCalls atomic.Int32
	s := New("s", staticLoader(`{}`), answering(survey.ResponseMap{}), okPersister(), Options{
		OnClose: func(context.Context, *Session) error {
			hookCalls.Add(1)
			return nil
		},
	})

	_, err := s.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Close(context.Background()))
	require.Equal(t, survey.StateDone, s.State())
	require.Zero(t, hookCalls.Load())
}

func TestRunTwiceIsRejected(t *testing.T) {
	s := New("s", staticLoader(`{}`), answering(survey.ResponseMap{}), okPersister(), Options{})
	_, err := s.Run(context.Background())
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMinInterimHoldsLoading(t *testing.T) {
	var readyAt, loadingAt time.Time
	observer := func(ev survey.Event) {
		switch ev.State {
		case survey.StateLoading:
			loadingAt = time.Now()
		case survey.StateReady:
			readyAt = time.Now()
		}
	}

	s := New("s", staticLoader(`{}`), answering(survey.ResponseMap{}), okPersister(), Options{
		MinInterim: 40 * time.Millisecond,
		Observers:  []Observer{observer},
	})
	_, err := s.Run(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, readyAt.Sub(loadingAt), 40*time.Millisecond)
}

func TestResponsesAreCopied(t *testing.T) {
	collected := survey.ResponseMap{"q": "a"}
	persister := persisterFunc(func(_ context.Context, _ string, responses survey.ResponseMap) (survey.PersistResult, error) {
		responses["q"] = "mutated"
		return survey.PersistResult{Success: true}, nil
	})

	s := New("s", staticLoader(`{}`), answering(collected), persister, Options{})
	out, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a", out.Responses["q"])
	require.Equal(t, "a", s.Responses()["q"])
	require.Equal(t, "a", collected["q"])
}

func TestCloseDuringSubmittingLetsSaveFinish(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var hookCalls atomic.Int32
	var persistErr error

	s := New("s", staticLoader(`{}`), answering(survey.ResponseMap{"q": "a"}),
		persisterFunc(func(ctx context.Context, _ string, _ survey.ResponseMap) (survey.PersistResult, error) {
			close(started)
			<-release
			persistErr = ctx.Err()
			return survey.PersistResult{Success: true}, nil
		}),
		Options{OnClose: func(context.Context, *Session) error {
			hookCalls.Add(1)
			return nil
		}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		out Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := s.Run(ctx)
		done <- result{out, err}
	}()

	<-started
	require.Equal(t, survey.StateSubmitting, s.State())

	closed := make(chan error, 1)
	go func() { closed <- s.Close(context.Background()) }()
	cancel()

	select {
	case <-closed:
		t.Fatal("Close returned before the save settled")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	require.NoError(t, <-closed)
	res := <-done
	require.NoError(t, res.err)
	require.True(t, res.out.Result.Success)
	require.NoError(t, persistErr)
	require.Equal(t, survey.StateDone, s.State())
	require.Zero(t, hookCalls.Load())
}

func TestCloseWaitingForSaveHonoursContext(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := New("s", staticLoader(`{}`), answering(survey.ResponseMap{"q": "a"}),
		persisterFunc(func(context.Context, string, survey.ResponseMap) (survey.PersistResult, error) {
			close(started)
			<-release
			return survey.PersistResult{Success: true}, nil
		}), Options{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Run(context.Background())
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Close(ctx), context.DeadlineExceeded)

	close(release)
	<-done
	require.Equal(t, survey.StateDone, s.State())
}
