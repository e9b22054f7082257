// Package amqpsink publishes job output to a RabbitMQ queue.
//
// Every output line becomes one persistent message. The shard a line belongs
// to travels in the "shard" header and the message ID is "<shard>#<line>", so
// consumers can drop redelivered lines. The success marker is published as a
// message of type "commit" once every shard has been sent, so consumers can
// tell a finished job from a partial one.
package amqpsink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/prxssh/groupby/internal/output"
)

const (
	// DefaultQueue is the queue results are published to when none is given.
	DefaultQueue = "groupby.results"

	TypeEntry  = "entry"
	TypeCommit = "commit"

	HeaderShard = "shard"
)

// Publisher is the subset of *amqp.Channel the sink needs.
type Publisher interface {
	PublishWithDeferredConfirmWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) (*amqp.DeferredConfirmation, error)
}

// Sink is an api.Sink that publishes to a single durable queue.
//
// api.Sink carries no per-call context, so a Sink is bound to the lifetime of
// one job: the context given to Dial or New bounds every publish and every
// confirm wait, and cancelling it fails whatever shard is being published.
type Sink struct {
	// ctx is the job context; see the type documentation.
	ctx    context.Context
	logger *slog.Logger
	queue  string

	// mu serializes publishes; an amqp channel is not safe for concurrent use.
	mu  sync.Mutex
	pub Publisher

	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to url, declares queue as durable and puts the channel in
// confirm mode.
func Dial(ctx context.Context, url, queue string, logger *slog.Logger) (*Sink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqpsink: failed to connect: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqpsink: failed to open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqpsink: failed to declare queue %s: %w", queue, err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqpsink: failed to enable confirms: %w", err)
	}

	s := New(ctx, ch, queue, logger)
	s.conn = conn
	s.ch = ch

	return s, nil
}

// New wraps an already configured publisher. The publisher must be in
// confirm mode. ctx should be the context of the job the sink serves.
func New(ctx context.Context, pub Publisher, queue string, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}

	return &Sink{
		ctx:    ctx,
		logger: logger.With("queue", queue),
		queue:  queue,
		pub:    pub,
	}
}

// OpenWrite returns a writer for one shard. Lines are buffered and published
// on Close; Abort drops them.
func (s *Sink) OpenWrite(p string) (io.WriteCloser, error) {
	if s.pub == nil {
		return nil, errors.New("amqpsink: sink is closed")
	}

	return &shardWriter{sink: s, path: p}, nil
}

// Close closes the channel and connection opened by Dial.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pub = nil

	var errs []error
	if s.ch != nil {
		errs = append(errs, s.ch.Close())
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
	}

	return errors.Join(errs...)
}

func (s *Sink) publish(shard string, typ string, lines [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pub == nil {
		return errors.New("amqpsink: sink is closed")
	}

	confirms := make([]*amqp.DeferredConfirmation, 0, len(lines))
	for i, line := range lines {
		dc, err := s.pub.PublishWithDeferredConfirmWithContext(
			s.ctx,
			"",      // default exchange
			s.queue, // routing key
			false,   // mandatory
			false,   // immediate
			amqp.Publishing{
				ContentType:  "text/plain",
				DeliveryMode: amqp.Persistent,
				Type:         typ,
				MessageId:    fmt.Sprintf("%s#%d", shard, i),
				Headers:      amqp.Table{HeaderShard: shard},
				Body:         line,
			},
		)
		if err != nil {
			return fmt.Errorf("amqpsink: failed to publish to %s: %w", s.queue, err)
		}
		confirms = append(confirms, dc)
	}

	for _, dc := range confirms {
		if dc == nil {
			continue
		}
		ok, err := dc.WaitContext(s.ctx)
		if err != nil {
			return fmt.Errorf("amqpsink: waiting for confirm: %w", err)
		}
		if !ok {
			return fmt.Errorf("amqpsink: broker rejected message for shard %s", shard)
		}
	}

	s.logger.Debug("published shard", "shard", shard, "type", typ, "messages", len(lines))

	return nil
}

type shardWriter struct {
	sink   *Sink
	path   string
	buf    bytes.Buffer
	closed bool
}

func (w *shardWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.New("amqpsink: write to closed shard")
	}

	return w.buf.Write(p)
}

func (w *shardWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	shard := path.Base(w.path)
	if shard == output.SuccessMarker {
		return w.sink.publish(path.Dir(w.path), TypeCommit, [][]byte{{}})
	}

	var lines [][]byte
	for _, line := range bytes.Split(w.buf.Bytes(), []byte{'\n'}) {
		if len(line) > 0 {
			lines = append(lines, line)
		}
	}

	return w.sink.publish(w.path, TypeEntry, lines)
}

func (w *shardWriter) Abort() error {
	w.closed = true
	w.buf.Reset()

	return nil
}
