// Package session implements the body-scan capture state machine. A Session
// acquires the camera, gates the countdown behind a confirm step, and turns a
// finished countdown into a persisted scan record.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/FitScan/internal/camera"
	"github.com/dharsanguruparan/FitScan/internal/history"
	"github.com/dharsanguruparan/FitScan/internal/model"
	"github.com/dharsanguruparan/FitScan/internal/platform"
)

// DefaultDuration is the capture window in ticks.
const DefaultDuration = 30

// State is the lifecycle position of a session.
type State string

const (
	Idle            State = "idle"
	AcquiringCamera State = "acquiring_camera"
	Previewing      State = "previewing"
	CountingDown    State = "counting_down"
	Completing      State = "completing"
	Cancelled       State = "cancelled"
	Failed          State = "failed"
)

// Stage tells acquisition failures apart from persistence failures.
type Stage string

const (
	StageAcquire Stage = "acquire"
	StagePersist Stage = "persist"
)

var (
	// ErrInvalidTransition is returned when an event does not apply to the
	// current state.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrNoUser is returned by Start when no user is signed in.
	ErrNoUser = errors.New("no user signed in")
	// ErrPersist wraps the saver's error after a completed countdown.
	ErrPersist = errors.New("persist scan")
	// ErrCancelled is returned by a Start whose acquisition was cancelled.
	ErrCancelled = errors.New("scan cancelled")
)

// Failure is the reason attached to the Failed state.
type Failure struct {
	Stage Stage
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("scan %s failed: %v", f.Stage, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Camera hands out exclusive device resources. *camera.Manager implements it.
type Camera interface {
	Acquire(ctx context.Context, c camera.Constraints) (*camera.Resource, error)
}

// Scheduler drives the countdown. *countdown.Scheduler implements it.
type Scheduler interface {
	Start(duration int, onTick func(remaining int), onComplete func()) error
	Cancel()
}

// Saver persists a finished scan.
type Saver interface {
	SaveScan(ctx context.Context, userID string, record model.ScanRecord) error
}

// ImageStore keeps a captured still and returns a reference to it.
type ImageStore interface {
	PutScanImage(ctx context.Context, userID, scanID string, data []byte, contentType string) (string, error)
}

// Notifier is told about every saved scan, e.g. to hand it to a measurement
// pipeline. Its errors are logged and otherwise ignored.
type Notifier interface {
	ScanSaved(ctx context.Context, userID string, record model.ScanRecord) error
}

// Observer is the UI surface. Calls happen outside the session lock and may
// arrive from the countdown goroutine; an observer may call Cancel or Start
// from inside a callback.
type Observer interface {
	OnState(snap Snapshot)
	OnTick(remaining int)
}

// Options wire a Session. Camera, Scheduler, Saver and History are required.
type Options struct {
	UserID      string
	Camera      Camera
	Scheduler   Scheduler
	Saver       Saver
	History     *history.Store
	Constraints camera.Constraints
	Duration    int
	Device      model.Device

	Observer Observer
	Images   ImageStore
	Notifier Notifier
	// CaptureStill grabs one frame before release when Images is set.
	CaptureStill bool

	Now   func() time.Time
	NewID func() string
}

// Snapshot is a point-in-time view of the session.
type Snapshot struct {
	State     State             `json:"state"`
	Remaining int               `json:"remainingSeconds,omitempty"`
	Record    *model.ScanRecord `json:"record,omitempty"`
	Stage     Stage             `json:"failureStage,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Session is one user's scan flow. It is safe for concurrent use and can be
// restarted after reaching Idle, Cancelled or Failed.
type Session struct {
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         State
	remaining     int
	attempt       uint64
	resource      *camera.Resource
	acquireCancel context.CancelFunc
	lastRecord    *model.ScanRecord
	lastFailure   *Failure
	closed        bool
}

// New builds an idle session. ctx bounds persistence and other work the
// session does on its own; Close cancels it.
func New(ctx context.Context, opts Options) (*Session, error) {
	if opts.Camera == nil || opts.Scheduler == nil || opts.Saver == nil || opts.History == nil {
		return nil, errors.New("session: camera, scheduler, saver and history are required")
	}
	if opts.Duration <= 0 {
		opts.Duration = DefaultDuration
	}
	if !opts.Device.Valid() {
		opts.Device = platform.Local()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = NewScanID
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Session{opts: opts, ctx: ctx, cancel: cancel, state: Idle}, nil
}

// NewScanID returns a time-ordered scan identifier.
func NewScanID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "scan_" + uuid.NewString()
	}
	return "scan_" + id.String()
}

// UserID returns the owner of the session.
func (s *Session) UserID() string {
	return s.opts.UserID
}

// Start advances the session. From Idle, Cancelled or Failed it acquires the
// camera and blocks until the preview is live, the acquisition fails, or it
// is cancelled. From Previewing it starts the countdown and returns at once.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("%w: session closed", ErrInvalidTransition)
	}
	switch s.state {
	case Idle, Cancelled, Failed:
		return s.acquire(ctx)
	case Previewing:
		return s.beginCountdown()
	default:
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: start while %s", ErrInvalidTransition, state)
	}
}

// acquire is entered with s.mu held.
func (s *Session) acquire(ctx context.Context) error {
	if s.opts.UserID == "" {
		s.mu.Unlock()
		return ErrNoUser
	}
	s.attempt++
	attempt := s.attempt
	acqCtx, cancel := context.WithCancel(ctx)
	s.acquireCancel = cancel
	s.lastRecord = nil
	s.lastFailure = nil
	snap := s.transition(AcquiringCamera)
	s.mu.Unlock()
	s.notify(snap)

	res, err := s.opts.Camera.Acquire(acqCtx, s.opts.Constraints)
	cancel()

	s.mu.Lock()
	if s.attempt != attempt || s.state != AcquiringCamera {
		s.mu.Unlock()
		if res != nil {
			_ = res.Release()
		}
		return ErrCancelled
	}
	s.acquireCancel = nil
	if err != nil && ctx.Err() != nil {
		// The caller gave up, e.g. the client went away.
		snap := s.transition(Cancelled)
		s.mu.Unlock()
		s.notify(snap)
		return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
	if err != nil {
		failure := &Failure{Stage: StageAcquire, Err: err}
		s.lastFailure = failure
		snap := s.transition(Failed)
		s.mu.Unlock()
		log.Printf("scan for %s: camera acquisition failed: %v", s.opts.UserID, err)
		s.notify(snap)
		return failure
	}
	s.resource = res
	snap = s.transition(Previewing)
	s.mu.Unlock()
	s.notify(snap)
	return nil
}

// beginCountdown is entered with s.mu held.
func (s *Session) beginCountdown() error {
	attempt := s.attempt
	s.remaining = s.opts.Duration
	snap := s.transition(CountingDown)
	s.mu.Unlock()
	s.notify(snap)

	err := s.opts.Scheduler.Start(s.opts.Duration,
		func(remaining int) { s.onTick(attempt, remaining) },
		func() { s.onComplete(attempt) },
	)
	if err != nil {
		s.mu.Lock()
		reverted := s.attempt == attempt && s.state == CountingDown
		if reverted {
			snap = s.transition(Previewing)
		}
		s.mu.Unlock()
		if reverted {
			s.notify(snap)
		}
		return fmt.Errorf("start countdown: %w", err)
	}

	s.mu.Lock()
	stale := s.attempt != attempt || s.state != CountingDown
	s.mu.Unlock()
	if stale {
		// Cancelled between the transition and the scheduler start.
		s.opts.Scheduler.Cancel()
		return ErrCancelled
	}
	return nil
}

func (s *Session) onTick(attempt uint64, remaining int) {
	s.mu.Lock()
	if s.attempt != attempt || s.state != CountingDown {
		s.mu.Unlock()
		return
	}
	s.remaining = remaining
	s.mu.Unlock()
	if s.opts.Observer != nil {
		s.opts.Observer.OnTick(remaining)
	}
}

func (s *Session) onComplete(attempt uint64) {
	s.mu.Lock()
	if s.attempt != attempt || s.state != CountingDown {
		s.mu.Unlock()
		return
	}
	res := s.resource
	s.resource = nil
	record := model.ScanRecord{
		ScanID:     s.opts.NewID(),
		ScanTime:   s.opts.Now().UTC(),
		Device:     s.opts.Device,
		TryOnCount: 0,
	}
	snap := s.transition(Completing)
	s.mu.Unlock()
	s.notify(snap)

	if s.opts.CaptureStill && s.opts.Images != nil && res != nil {
		if url, err := s.captureStill(res, record.ScanID); err != nil {
			log.Printf("scan %s: still capture skipped: %v", record.ScanID, err)
		} else {
			record.ImageURL = &url
		}
	}

	saveErr := s.opts.Saver.SaveScan(s.ctx, s.opts.UserID, record)
	if res != nil {
		if err := res.Release(); err != nil {
			log.Printf("scan %s: release camera: %v", record.ScanID, err)
		}
	}

	s.mu.Lock()
	if saveErr != nil {
		failure := &Failure{Stage: StagePersist, Err: fmt.Errorf("%w: %w", ErrPersist, saveErr)}
		s.lastFailure = failure
		snap = s.transition(Failed)
		s.mu.Unlock()
		log.Printf("scan %s for %s: save failed: %v", record.ScanID, s.opts.UserID, saveErr)
		s.notify(snap)
		return
	}
	s.opts.History.Append(record)
	saved := record.Clone()
	s.lastRecord = &saved
	snap = s.transition(Idle)
	s.mu.Unlock()
	log.Printf("scan %s saved for %s", record.ScanID, s.opts.UserID)
	s.notify(snap)

	if s.opts.Notifier != nil {
		if err := s.opts.Notifier.ScanSaved(s.ctx, s.opts.UserID, record); err != nil {
			log.Printf("scan %s: notify: %v", record.ScanID, err)
		}
	}
}

func (s *Session) captureStill(res *camera.Resource, scanID string) (string, error) {
	still, ok := res.Stream().(camera.StillCapturer)
	if !ok {
		return "", errors.New("stream cannot capture stills")
	}
	data, contentType, err := still.CaptureStill(s.ctx)
	if err != nil {
		return "", err
	}
	return s.opts.Images.PutScanImage(s.ctx, s.opts.UserID, scanID, data, contentType)
}

// Cancel aborts a pending acquisition, a preview or a running countdown and
// releases the camera before returning. Other states reject it.
func (s *Session) Cancel() error {
	s.mu.Lock()
	switch s.state {
	case AcquiringCamera:
		cancel := s.acquireCancel
		s.acquireCancel = nil
		snap := s.transition(Cancelled)
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		s.notify(snap)
		return nil
	case Previewing, CountingDown:
		counting := s.state == CountingDown
		res := s.resource
		s.resource = nil
		snap := s.transition(Cancelled)
		s.mu.Unlock()
		if counting {
			s.opts.Scheduler.Cancel()
		}
		if res != nil {
			if err := res.Release(); err != nil {
				log.Printf("scan for %s: release camera: %v", s.opts.UserID, err)
			}
		}
		s.notify(snap)
		return nil
	default:
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: cancel while %s", ErrInvalidTransition, state)
	}
}

// Close tears the session down: anything in progress is cancelled, an
// in-flight save is aborted, and further Starts are rejected.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	state := s.state
	s.mu.Unlock()
	switch state {
	case AcquiringCamera, Previewing, CountingDown:
		_ = s.Cancel()
	}
	s.cancel()
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Stream returns the live capture handle while previewing or counting down.
func (s *Session) Stream() (camera.Stream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resource == nil {
		return nil, false
	}
	return s.resource.Stream(), true
}

// Failure returns the reason of the last failed attempt, if any.
func (s *Session) Failure() *Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFailure
}

// transition must be called with s.mu held.
func (s *Session) transition(to State) Snapshot {
	s.state = to
	if to != CountingDown {
		s.remaining = 0
	}
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{State: s.state}
	if s.state == CountingDown {
		snap.Remaining = s.remaining
	}
	if s.lastRecord != nil {
		rec := s.lastRecord.Clone()
		snap.Record = &rec
	}
	if s.lastFailure != nil {
		snap.Stage = s.lastFailure.Stage
		snap.Error = s.lastFailure.Err.Error()
	}
	return snap
}

func (s *Session) notify(snap Snapshot) {
	if s.opts.Observer != nil {
		s.opts.Observer.OnState(snap)
	}
}
