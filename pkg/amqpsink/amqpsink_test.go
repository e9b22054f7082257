package amqpsink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type recorder struct {
	mu   sync.Mutex
	msgs []amqp.Publishing
	keys []string
	err  error
}

func (r *recorder) PublishWithDeferredConfirmWithContext(
	ctx context.Context,
	exchange, key string,
	_, _ bool,
	msg amqp.Publishing,
) (*amqp.DeferredConfirmation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.err != nil {
		return nil, r.err
	}
	r.keys = append(r.keys, key)
	r.msgs = append(r.msgs, msg)

	return nil, nil
}

func TestShardPublishedOnClose(t *testing.T) {
	rec := &recorder{}
	sink := New(context.Background(), rec, "results", quiet)

	wc, err := sink.OpenWrite("out/part-r-00000")
	require.NoError(t, err)

	_, err = io.WriteString(wc, "AR 2 1200\nAU 1")
	require.NoError(t, err)
	_, err = io.WriteString(wc, " 300\n")
	require.NoError(t, err)
	require.Empty(t, rec.msgs, "nothing is published before Close")

	require.NoError(t, wc.Close())
	require.NoError(t, wc.Close())

	require.Len(t, rec.msgs, 2)
	require.Equal(t, []string{"results", "results"}, rec.keys)
	require.Equal(t, "AR 2 1200", string(rec.msgs[0].Body))
	require.Equal(t, "AU 1 300", string(rec.msgs[1].Body))
	require.Equal(t, "out/part-r-00000#0", rec.msgs[0].MessageId)
	require.Equal(t, "out/part-r-00000#1", rec.msgs[1].MessageId)
	for _, msg := range rec.msgs {
		require.Equal(t, TypeEntry, msg.Type)
		require.Equal(t, amqp.Persistent, msg.DeliveryMode)
		require.Equal(t, "out/part-r-00000", msg.Headers[HeaderShard])
	}

	_, err = wc.Write([]byte("late\n"))
	require.Error(t, err)
}

func TestSuccessMarkerPublishesCommit(t *testing.T) {
	rec := &recorder{}
	sink := New(context.Background(), rec, "results", quiet)

	wc, err := sink.OpenWrite("out/_SUCCESS")
	require.NoError(t, err)
	require.NoError(t, wc.Close())

	require.Len(t, rec.msgs, 1)
	require.Equal(t, TypeCommit, rec.msgs[0].Type)
	require.Equal(t, "out", rec.msgs[0].Headers[HeaderShard])
	require.Empty(t, rec.msgs[0].Body)
}

func TestAbortDropsShard(t *testing.T) {
	rec := &recorder{}
	sink := New(context.Background(), rec, "results", quiet)

	wc, err := sink.OpenWrite("out/part-r-00001")
	require.NoError(t, err)
	_, err = io.WriteString(wc, "AR 2 1200\n")
	require.NoError(t, err)

	require.NoError(t, wc.(interface{ Abort() error }).Abort())
	require.NoError(t, wc.Close())
	require.Empty(t, rec.msgs)
}

func TestPublishError(t *testing.T) {
	rec := &recorder{err: errors.New("channel closed")}
	sink := New(context.Background(), rec, "results", quiet)

	wc, err := sink.OpenWrite("out/part-r-00000")
	require.NoError(t, err)
	_, err = io.WriteString(wc, "AR 2 1200\n")
	require.NoError(t, err)

	err = wc.Close()
	require.Error(t, err)
	require.Contains(t, err.Error(), "channel closed")
}

func TestClosedSink(t *testing.T) {
	sink := New(context.Background(), &recorder{}, "results", quiet)
	wc, err := sink.OpenWrite("out/part-r-00000")
	require.NoError(t, err)

	require.NoError(t, sink.Close())

	_, err = sink.OpenWrite("out/part-r-00001")
	require.Error(t, err)

	_, err = io.WriteString(wc, "AR 2 1200\n")
	require.NoError(t, err)
	require.Error(t, wc.Close())
}

func TestCancelledJobFailsPublish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	sink := New(ctx, rec, "results", quiet)

	wc, err := sink.OpenWrite("out/part-r-00000")
	require.NoError(t, err)
	_, err = io.WriteString(wc, "AR 2 1200\n")
	require.NoError(t, err)

	cancel()
	require.ErrorIs(t, wc.Close(), context.Canceled)
	require.Empty(t, rec.msgs)
}
