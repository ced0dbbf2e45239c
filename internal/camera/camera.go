// Package camera wraps the platform video capture device behind a small
// capability interface and enforces that only one holder uses it at a time.
package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrPermissionDenied means the user or the OS refused device access.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrDeviceUnavailable means the hardware is absent or busy.
	ErrDeviceUnavailable = errors.New("camera device unavailable")
	// ErrDeviceBusy is returned when another holder owns the device. It
	// matches ErrDeviceUnavailable under errors.Is.
	ErrDeviceBusy = fmt.Errorf("%w: device already in use", ErrDeviceUnavailable)
)

// Constraints describe the requested capture resolution.
type Constraints struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Stream is a live capture handle a UI surface can bind to.
type Stream interface {
	ID() string
	// Stop ends every track of the stream.
	Stop() error
}

// StillCapturer is implemented by streams that can grab a single frame.
type StillCapturer interface {
	CaptureStill(ctx context.Context) (data []byte, contentType string, err error)
}

// Device opens capture streams. Open may block for as long as a permission
// prompt stays unanswered and should honour ctx where it can.
type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Manager hands out the device to one holder at a time.
type Manager struct {
	device Device

	mu      sync.Mutex
	held    *Resource
	pending bool
	// draining is set while an abandoned Open is still in flight. It is
	// closed once that Open has returned and its stream has been stopped.
	draining chan struct{}
}

// NewManager constructs a Manager for device.
func NewManager(device Device) *Manager {
	return &Manager{device: device}
}

// Acquire opens the device exclusively. A pending acquisition is abandoned
// when ctx is cancelled; a stream that arrives afterwards is stopped at once.
// A later Acquire waits for such an abandoned Open to drain before opening the
// device again.
func (m *Manager) Acquire(ctx context.Context, c Constraints) (*Resource, error) {
	m.mu.Lock()
	for m.held == nil && m.draining != nil {
		wait := m.draining
		m.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire camera: %w", ctx.Err())
		}
		m.mu.Lock()
	}
	if m.held != nil || m.pending {
		m.mu.Unlock()
		return nil, ErrDeviceBusy
	}
	m.pending = true
	m.mu.Unlock()

	type result struct {
		stream Stream
		err    error
	}
	// Buffered so the opener never blocks when nobody is listening anymore.
	done := make(chan result, 1)
	go func() {
		stream, err := m.device.Open(ctx, c)
		done <- result{stream: stream, err: err}
	}()

	select {
	case res := <-done:
		m.mu.Lock()
		defer m.mu.Unlock()
		m.pending = false
		if res.err != nil {
			return nil, classify(res.err)
		}
		if err := ctx.Err(); err != nil {
			_ = res.stream.Stop()
			return nil, fmt.Errorf("acquire camera: %w", err)
		}
		r := &Resource{manager: m, stream: res.stream}
		m.held = r
		return r, nil
	case <-ctx.Done():
		drained := make(chan struct{})
		m.mu.Lock()
		m.draining = drained
		m.mu.Unlock()
		go func() {
			if res := <-done; res.err == nil && res.stream != nil {
				_ = res.stream.Stop()
			}
			m.mu.Lock()
			m.pending = false
			m.draining = nil
			m.mu.Unlock()
			close(drained)
		}()
		return nil, fmt.Errorf("acquire camera: %w", ctx.Err())
	}
}

// Held reports whether a resource is currently live.
func (m *Manager) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held != nil
}

func (m *Manager) free(r *Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held == r {
		m.held = nil
	}
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrDeviceUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
}

// Resource is one acquisition of the device.
type Resource struct {
	manager *Manager
	stream  Stream

	once sync.Once
	err  error

	mu       sync.Mutex
	released bool
}

// Stream returns the live handle.
func (r *Resource) Stream() Stream {
	return r.stream
}

// Release stops the stream and frees the device. Only the first call does
// any work; later calls return the same result.
func (r *Resource) Release() error {
	r.once.Do(func() {
		r.err = r.stream.Stop()
		r.mu.Lock()
		r.released = true
		r.mu.Unlock()
		r.manager.free(r)
	})
	return r.err
}

// Released reports whether Release has run.
func (r *Resource) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}
