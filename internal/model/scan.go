// Package model contains simple struct definitions shared across packages.
package model

import (
	"time"
)

// Device is the coarse platform tag attached to a scan. In Go a type declared
// via "type X string" creates a new named type with string as the underlying
// representation, so a Device cannot be mixed up with an arbitrary string.
type Device string

const (
	DeviceMobile  Device = "mobile"
	DeviceDesktop Device = "desktop"
)

// Valid reports whether d is one of the known classifications.
func (d Device) Valid() bool {
	return d == DeviceMobile || d == DeviceDesktop
}

// ScanRecord is the persisted outcome of a successful scan session. Pointer
// fields stay nil until something populates them; omitempty drops them from
// JSON output in that case.
type ScanRecord struct {
	ScanID   string    `json:"scanId"`
	ScanTime time.Time `json:"scanTime"`
	Height   *float64  `json:"height,omitempty"`
	Weight   *float64  `json:"weight,omitempty"`
	ImageURL *string   `json:"imageURL,omitempty"`
	Device   Device    `json:"device"`
	// TryOnCount is the only field that changes after the record is saved.
	TryOnCount int `json:"tryOnCount"`
}

// Clone returns a deep copy so callers cannot mutate cached records through
// the optional pointer fields.
func (r ScanRecord) Clone() ScanRecord {
	out := r
	if r.Height != nil {
		h := *r.Height
		out.Height = &h
	}
	if r.Weight != nil {
		w := *r.Weight
		out.Weight = &w
	}
	if r.ImageURL != nil {
		u := *r.ImageURL
		out.ImageURL = &u
	}
	return out
}
