// Package sse writes one-way server-sent event streams.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const (
	EventEnd   = "end"
	EventError = "error"
)

var ErrStreamClosed = errors.New("event stream already closed")

// Stream sends JSON events to a single client. Headers are written with the
// first event, so a caller can still reply with a normal status code until
// then. Exactly one terminal event (End or Error) may be sent.
type Stream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	closed  bool
}

func NewStream(w http.ResponseWriter) *Stream {
	flusher, _ := w.(http.Flusher)
	return &Stream{w: w, flusher: flusher}
}

// Started reports whether any event has been written.
func (s *Stream) Started() bool {
	return s.started
}

// Send writes a progress event on the default channel.
func (s *Stream) Send(data any) error {
	return s.write("", data)
}

// End writes the terminal success event.
func (s *Stream) End(data any) error {
	err := s.write(EventEnd, data)
	s.closed = true
	return err
}

// Error writes the terminal failure event.
func (s *Stream) Error(data any) error {
	err := s.write(EventError, data)
	s.closed = true
	return err
}

func (s *Stream) write(event string, data any) error {
	if s.closed {
		return ErrStreamClosed
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}

	if event != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}

	if s.flusher != nil {
		s.flusher.Flush()
	}

	return nil
}
