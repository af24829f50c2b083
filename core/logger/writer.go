package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// entry is either a line to write or, when ack is set, a flush request that
// is answered once every earlier line reached the sinks.
type entry struct {
	line []byte
	ack  chan error
}

// asyncWriter hands lines to a single goroutine that fans them out to every
// sink. Write blocks only when the queue is full.
type asyncWriter struct {
	mu     sync.RWMutex
	closed bool
	queue  chan entry
	done   chan struct{}

	sinks []*bufio.Writer

	errMu sync.Mutex
	err   error
}

func newAsyncWriter(writers []io.Writer, queueSize int) *asyncWriter {
	if queueSize <= 0 {
		queueSize = 256
	}
	w := &asyncWriter{
		queue: make(chan entry, queueSize),
		done:  make(chan struct{}),
	}
	for _, out := range writers {
		if out != nil {
			w.sinks = append(w.sinks, bufio.NewWriter(out))
		}
	}
	go w.loop()
	return w
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for e := range w.queue {
		if e.ack != nil {
			e.ack <- w.flushSinks()
			continue
		}
		w.setErr(w.writeSinks(e.line))
		if len(w.queue) == 0 {
			w.setErr(w.flushSinks())
		}
	}
	w.setErr(w.flushSinks())
}

func (w *asyncWriter) enqueue(e entry) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.queue <- e
	return nil
}

// Write copies p and enqueues it.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.Err(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	return w.enqueue(entry{line: append([]byte(nil), p...)})
}

// Flush waits until every line written before the call reached the sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	if err := w.enqueue(entry{ack: ack}); err != nil {
		return err
	}
	return <-ack
}

// Close drains the queue, flushes the sinks and stops the loop.
func (w *asyncWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
	return w.Err()
}

// Err returns the first write error seen by the loop.
func (w *asyncWriter) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

func (w *asyncWriter) setErr(err error) {
	if err == nil {
		return
	}
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err == nil {
		w.err = err
	}
}

func (w *asyncWriter) writeSinks(p []byte) error {
	var errs []error
	for _, s := range w.sinks {
		if _, err := s.Write(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) flushSinks() error {
	var errs []error
	for _, s := range w.sinks {
		errs = append(errs, s.Flush())
	}
	return errors.Join(errs...)
}
