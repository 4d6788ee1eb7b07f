package logger

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// Output is a log destination with its own level floor. The errors file is an Output with
// Min set to slog.LevelWarn.
type Output struct {
	W   io.Writer
	Min slog.Level
}

type sink struct {
	buf *bufio.Writer
	min slog.Level
}

type line struct {
	level slog.Level
	data  []byte
}

// asyncWriter hands formatted lines to a single goroutine that fans them out to the sinks
// whose floor they reach.
type asyncWriter struct {
	queue    chan line
	flushReq chan chan error
	done     chan struct{}
	once     sync.Once
	sinks    []sink

	mu       sync.Mutex
	writeErr error
}

func newAsyncWriter(outputs []Output, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	sinks := make([]sink, 0, len(outputs))
	for _, o := range outputs {
		if o.W == nil {
			continue
		}
		sinks = append(sinks, sink{buf: bufio.NewWriterSize(o.W, bufSize), min: o.Min})
	}
	aw := &asyncWriter{
		queue:    make(chan line, 256),
		flushReq: make(chan chan error),
		done:     make(chan struct{}),
		sinks:    sinks,
	}
	go aw.loop()
	return aw
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case l, ok := <-w.queue:
			if !ok {
				w.setErr(w.flushAll())
				return
			}
			w.setErr(w.writeAll(l))
		case ack := <-w.flushReq:
			ack <- w.flushAll()
		}
	}
}

// Write queues a copy of p. It blocks when the queue is full rather than drop the line.
func (w *asyncWriter) Write(level slog.Level, p []byte) error {
	if err := w.err(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.queue <- line{level: level, data: append([]byte(nil), p...)}
	return nil
}

// Flush waits until every queued line reached the sinks.
func (w *asyncWriter) Flush() error {
	if err := w.err(); err != nil {
		return err
	}
	ack := make(chan error, 1)
	select {
	case w.flushReq <- ack:
		return <-ack
	case <-w.done:
		return w.err()
	}
}

// Close drains the queue and reports the first write error.
func (w *asyncWriter) Close() error {
	w.once.Do(func() { close(w.queue) })
	<-w.done
	return w.err()
}

func (w *asyncWriter) writeAll(l line) error {
	for _, s := range w.sinks {
		if l.level < s.min {
			continue
		}
		if _, err := s.buf.Write(l.data); err != nil {
			return err
		}
		if err := s.buf.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (w *asyncWriter) flushAll() error {
	var errs []error
	for _, s := range w.sinks {
		if err := s.buf.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeErr
}

func (w *asyncWriter) setErr(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writeErr == nil {
		w.writeErr = err
	}
}
