package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
)

// V4L2Device opens a Linux video node such as /dev/video0.
type V4L2Device struct {
	Path string
}

// NewV4L2Device returns a device bound to path.
func NewV4L2Device(path string) *V4L2Device {
	return &V4L2Device{Path: path}
}

// Open implements Device.
func (d *V4L2Device) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(d.Path, os.O_RDWR, 0)
	if err != nil {
		return nil, classifyOpenError(d.Path, err)
	}
	return &fileStream{f: f, path: d.Path, constraints: c}, nil
}

func classifyOpenError(path string, err error) error {
	// fs.ErrPermission matches both EACCES and EPERM.
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("open %s: %w: %w", path, ErrPermissionDenied, err)
	}
	// Missing nodes, EBUSY, ENODEV and anything else leave the device
	// unusable for this attempt.
	return fmt.Errorf("open %s: %w: %w", path, ErrDeviceUnavailable, err)
}

type fileStream struct {
	f           *os.File
	path        string
	constraints Constraints

	once sync.Once
	err  error
}

func (s *fileStream) ID() string {
	return s.path
}

func (s *fileStream) Stop() error {
	s.once.Do(func() {
		s.err = s.f.Close()
	})
	return s.err
}

// CaptureStill reads one raw YUYV frame (two bytes per pixel) from the node.
func (s *fileStream) CaptureStill(ctx context.Context) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	size := s.constraints.Width * s.constraints.Height * 2
	if size <= 0 {
		return nil, "", errors.New("capture still: no resolution configured")
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(s.f, buf); err != nil {
		return nil, "", fmt.Errorf("capture still: %w", err)
	}
	return buf, "application/octet-stream", nil
}
