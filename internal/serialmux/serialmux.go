// Serialmux provides an abstraction over a serial port with the ability for
// multiple clients to subscribe to unsolicited lines from the device and to
// issue tagged requests whose replies are routed back to the caller, even
// when several requests are in flight at once.
package serialmux

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"tailscale.com/tsweb"

	"github.com/banshee-data/picker/internal/monitoring"
)

var (
	ErrWriteFailed = fmt.Errorf("failed to write to serial port")
	// ErrClosed is returned to requests pending when the mux shuts down or the
	// port stops delivering lines.
	ErrClosed = errors.New("serial mux closed")
)

// SerialMux is a generic serial port multiplexer that allows multiple clients to
// subscribe to events from a single serial port and to share it for requests.
type SerialMux[T SerialPorter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex

	pending   map[string]chan string
	pendingMu sync.Mutex
	seq       atomic.Uint64

	closing   bool
	closeErr  error
	closingMu sync.Mutex
	done      chan struct{}
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving untagged lines from the
	// serial port. The channel ID is used to identify the unique channel when
	// unsubscribing.
	Subscribe() (string, chan string)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// SendCommand writes the provided command to the serial port without
	// waiting for a reply.
	SendCommand(string) error
	// Request writes a tagged command and blocks until the device answers
	// with the same tag. The tag is stripped from the returned reply.
	Request(context.Context, string) (string, error)
	// Monitor reads lines from the serial port and routes them to pending
	// requests or subscribers.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the serial port.
	Close() error

	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/. These routes are accessible only over
	// localhost/via Tailscale and are not publicly accessible.
	AttachAdminRoutes(*http.ServeMux)
}

// NewSerialMux creates a SerialMux instance backed by the given port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
		pending:     make(map[string]chan string),
		done:        make(chan struct{}),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// SendCommand sends a command to the serial port.
func (s *SerialMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !strings.HasSuffix(command, "\n") {
		command += "\n" // ensure command ends with a newline
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Request sends command under a fresh tag and waits for the matching reply.
func (s *SerialMux[T]) Request(ctx context.Context, command string) (string, error) {
	if err := s.closedErr(); err != nil {
		return "", err
	}

	tag := formatTag(s.seq.Add(1))
	reply := make(chan string, 1)

	s.pendingMu.Lock()
	s.pending[tag] = reply
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, tag)
		s.pendingMu.Unlock()
	}()

	if err := s.SendCommand(tag + " " + strings.TrimSpace(command)); err != nil {
		return "", err
	}

	select {
	case line := <-reply:
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.done:
		return "", s.closedErr()
	}
}

// Monitor monitors the serial port for lines and dispatches them: tagged
// replies go to the waiting request, everything else to subscribers.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// start a goroutine to read from the serial port & send any lines that are scanned to linesChan.
	// and any errors to the scanErrChan
	//
	// the blocking scan.Scan will not interfere with our outer loop awaiting
	// lines & context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.shutdown(ctx.Err())
			return ctx.Err()

		case err := <-scanErrChan:
			s.shutdown(err)
			return err

		case line, ok := <-lineChan:
			// if the channel is closed, we're done reading from the serial port
			if !ok {
				s.shutdown(io.EOF)
				return nil
			}
			s.closingMu.Lock()
			if s.closing {
				s.closingMu.Unlock()
				return nil
			}
			s.closingMu.Unlock()

			s.dispatch(line)
		}
	}
}

func (s *SerialMux[T]) dispatch(line string) {
	if tag, rest, ok := SplitTag(line); ok {
		s.pendingMu.Lock()
		reply, waiting := s.pending[tag]
		s.pendingMu.Unlock()
		if waiting {
			// buffered and written once per tag, never blocks
			select {
			case reply <- rest:
			default:
				monitoring.Logf("serialmux: duplicate reply for %s dropped: %q", tag, rest)
			}
			return
		}
		monitoring.Logf("serialmux: reply for unknown tag %s: %q", tag, rest)
	}

	s.subscriberMu.Lock()
	for _, ch := range s.subscribers {
		select {
		case ch <- line:
		default:
			// if the channel is full/blocking skip so as not to block the outer loop
		}
	}
	s.subscriberMu.Unlock()
}

// shutdown releases every pending request with err wrapped in ErrClosed.
func (s *SerialMux[T]) shutdown(cause error) {
	s.closingMu.Lock()
	defer s.closingMu.Unlock()
	if s.closeErr != nil {
		return
	}
	if cause == nil {
		cause = io.EOF
	}
	s.closeErr = fmt.Errorf("%w: %w", ErrClosed, cause)
	close(s.done)
}

func (s *SerialMux[T]) closedErr() error {
	s.closingMu.Lock()
	defer s.closingMu.Unlock()
	return s.closeErr
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()
	s.shutdown(errors.New("closed by caller"))

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// API endpoint to send a tagged request to the arm and return its reply
	debug.HandleSilentFunc("arm-request", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		reply, err := s.Request(r.Context(), command)
		if err != nil {
			http.Error(w, fmt.Sprintf("Request failed: %v", err), http.StatusBadGateway)
			return
		}
		io.WriteString(w, reply)
	})

	// API endpoint to issue Server-Side Events (SSE) in response to untagged
	// lines coming from the serial port.
	debug.HandleSilentFunc("arm-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		w.(http.Flusher).Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
