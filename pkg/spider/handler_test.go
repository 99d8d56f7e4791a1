package spider

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func parsePage(_ context.Context, _ *Response, _ int, out *Emitter[string, int]) error {
	return out.Item("page")
}

func TestWrapNamesHandlerAfterFunction(t *testing.T) {
	t.Parallel()

	h := Wrap(parsePage)
	require.Equal(t, "spider.parsePage", h.Name())
	require.Equal(t, "custom", Func("custom", parsePage).Name())
}

func TestProduceDeliversInOrder(t *testing.T) {
	t.Parallel()

	ch := Produce(context.Background(), func(out *Emitter[int, int]) error {
		for i := range 5 {
			if err := out.Item(i); err != nil {
				return err
			}
		}
		return nil
	})

	var got []int
	for o := range ch {
		require.False(t, o.IsCallback())
		v, ok := o.Item()
		require.True(t, ok)
		got = append(got, v)
	}
	require.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestEmitterStopsWhenConsumerLeaves(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	ch := Produce(ctx, func(out *Emitter[int, int]) error {
		for i := 0; ; i++ {
			if err := out.Item(i); err != nil {
				errCh <- err
				return err
			}
		}
	})
	<-ch
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrStopped)
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("producer kept running after cancel")
	}
	for range ch {
	}
}

func TestEmitterRejectsNilCallback(t *testing.T) {
	t.Parallel()

	e := &Emitter[int, int]{ctx: context.Background()}
	require.ErrorIs(t, e.Follow(nil), ErrInvalidCallback)
}

func TestOutcomeAccessors(t *testing.T) {
	t.Parallel()

	item := NewItem[string, int]("x")
	v, ok := item.Item()
	require.True(t, ok)
	require.Equal(t, "x", v)
	_, ok = item.Callback()
	require.False(t, ok)

	req, err := Get("http://site.test/next")
	require.NoError(t, err)
	follow := NewFollow(NewCallback(Wrap(parsePage), req, 7))
	require.True(t, follow.IsCallback())
	_, ok = follow.Item()
	require.False(t, ok)
	cb, ok := follow.Callback()
	require.True(t, ok)
	require.Equal(t, 7, cb.Meta())
	require.Equal(t, "spider.parsePage -> http://site.test/next", cb.String())

	nilFollow := NewFollow[string, int](nil)
	require.True(t, nilFollow.IsCallback())
	_, ok = nilFollow.Item()
	require.False(t, ok)
	cb, ok = nilFollow.Callback()
	require.True(t, ok)
	require.Nil(t, cb)

	var zero Outcome[string, int]
	require.False(t, zero.IsCallback())
	_, ok = zero.Item()
	require.False(t, ok)
}

func TestCallbackCopiesRequest(t *testing.T) {
	t.Parallel()

	req, err := NewRequest("post", "http://site.test/form", []byte("a=1"))
	require.NoError(t, err)
	cb := NewCallback(Wrap(parsePage), req, 0)

	req.Body[0] = 'b'
	req.URL.Path = "/changed"
	target := cb.Target()
	require.Equal(t, "POST", target.Method)
	require.Equal(t, "a=1", string(target.Body))
	require.Equal(t, "/form", target.URL.Path)
}

func TestNewRequestValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRequest("GET", "/relative", nil)
	require.Error(t, err)

	_, err = NewRequest("GET", "http://%zz", nil)
	require.Error(t, err)

	req, err := NewRequest("", "https://site.test", nil)
	require.NoError(t, err)
	require.Equal(t, "GET https://site.test", req.String())
}

func TestResponseJoin(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://site.test/page/2/")
	require.NoError(t, err)
	resp := &Response{URL: base}

	u, err := resp.Join(" /page/3/ ")
	require.NoError(t, err)
	require.Equal(t, "https://site.test/page/3/", u.String())

	u, err = resp.Join("next")
	require.NoError(t, err)
	require.Equal(t, "https://site.test/page/2/next", u.String())
}

func TestLoggerFromDefaultsToNop(t *testing.T) {
	t.Parallel()

	require.NotNil(t, LoggerFrom(context.Background()))
	logger := zap.NewExample()
	require.Same(t, logger, LoggerFrom(ContextWithLogger(context.Background(), logger)))
}

func TestCallbackErrorMatchesKind(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := error(&CallbackError{Kind: KindTransport, Callback: "h -> http://site.test", Err: cause})
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrItemSink)
	require.Equal(t, "h -> http://site.test: transport failure: connection reset", err.Error())

	var cbErr *CallbackError
	require.True(t, errors.As(err, &cbErr))
	require.Equal(t, "transport", cbErr.Kind.String())
	require.Equal(t, "queue_sink", KindQueueSink.String())
	require.ErrorIs(t, &CallbackError{Kind: KindItemSink, Err: cause}, ErrItemSink)
}
