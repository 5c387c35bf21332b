// crowlink
// Copyright (c) 2025 The CrowDisplay Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of crowlink.
//
// crowlink is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// crowlink is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with crowlink; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Package detection discovers candidate companion devices attached to the
// host. Detectors register themselves per transport kind from package
// init; import a detector package (e.g. detection/uart) for its side
// effects to enable it. DetectAll fans out across the registry and
// returns candidates ranked best first.
package detection

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Detection errors
var (
	// ErrNoDevicesFound indicates no candidate device was detected.
	ErrNoDevicesFound = errors.New("no devices found")

	// ErrDetectionTimeout indicates the detection budget expired mid-scan.
	ErrDetectionTimeout = errors.New("detection timed out")

	// ErrUnsupportedPlatform indicates a detector cannot run on this OS.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// Mode selects how intrusive a detection pass may be.
type Mode int

const (
	// Passive lists candidates from enumeration data alone and never
	// touches a port. Only devices with a recognized USB identity are
	// reported.
	Passive Mode = iota

	// Safe additionally opens each candidate briefly to confirm it is
	// present and not held by another process. Nothing is written.
	Safe

	// Full opens each candidate and listens for companion traffic.
	// Candidates with neither a recognized identity nor traffic are
	// dropped.
	Full
)

// Confidence grades how likely a detected device is the companion.
type Confidence int

const (
	// Low marks a device that merely looks like a serial port.
	Low Confidence = iota
	// Medium marks a device whose USB identity matches a known
	// companion bridge.
	Medium
	// High marks a device confirmed by observed companion traffic.
	High
)

// String returns the confidence grade as a word.
func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// DeviceInfo describes one detected candidate device.
type DeviceInfo struct {
	// Metadata carries source-specific details such as manufacturer,
	// product string or probe results.
	Metadata map[string]string

	// Transport is the transport kind that can drive this device,
	// e.g. "serial".
	Transport string

	// Path is the platform device path, e.g. "/dev/ttyUSB0" or "COM3".
	Path string

	// Name is a human-readable device name.
	Name string

	// VIDPID is the USB identity in "VVVV:PPPP" form, empty when the
	// platform source could not recover one.
	VIDPID string

	// Confidence grades the candidate.
	Confidence Confidence
}

// Options configures a detection pass.
type Options struct {
	// Blocklist holds VID:PID pairs that must never be probed.
	Blocklist []string

	// IgnorePaths holds device paths to exclude from results.
	IgnorePaths []string

	// Timeout bounds the whole pass when DetectAll has to derive its
	// own context.
	Timeout time.Duration

	// Mode selects the probing depth.
	Mode Mode
}

// DefaultOptions returns the standard detection settings: safe mode,
// the default blocklist and a two second budget.
func DefaultOptions() Options {
	return Options{
		Blocklist: DefaultBlocklist(),
		Timeout:   2 * time.Second,
		Mode:      Safe,
	}
}

// Detector finds candidate devices reachable over one transport kind.
type Detector interface {
	// Transport returns the transport kind this detector feeds,
	// matching the crowlink TransportKind strings.
	Transport() string

	// Detect returns the candidates found within the options' budget.
	// It returns ErrNoDevicesFound when the scan completed but found
	// nothing.
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
}

var (
	registryMu sync.RWMutex
	registry   []Detector
)

// RegisterDetector adds a detector to the global registry. Detector
// packages call this from init.
func RegisterDetector(d Detector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, d)
}

// Detectors returns a snapshot of the registered detectors.
func Detectors() []Detector {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Detector, len(registry))
	copy(out, registry)
	return out
}

// DetectAll runs every registered detector and returns all candidates,
// best first. A nil opts uses DefaultOptions. The pass is bounded by
// opts.Timeout.
func DetectAll(opts *Options) ([]DeviceInfo, error) {
	var o Options
	if opts != nil {
		o = *opts
	} else {
		o = DefaultOptions()
	}

	timeout := o.Timeout
	if timeout <= 0 {
		timeout = DefaultOptions().Timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return DetectAllContext(ctx, &o)
}

// DetectAllContext is DetectAll bounded by the caller's context.
func DetectAllContext(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	var o Options
	if opts != nil {
		o = *opts
	} else {
		o = DefaultOptions()
	}

	var (
		devices []DeviceInfo
		errs    []error
	)
	for _, d := range Detectors() {
		if err := ctx.Err(); err != nil {
			return devices, ErrDetectionTimeout
		}

		found, err := d.Detect(ctx, &o)
		if err != nil {
			// A detector with nothing to report is not a failure of
			// the pass.
			if errors.Is(err, ErrNoDevicesFound) || errors.Is(err, ErrUnsupportedPlatform) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		devices = append(devices, found...)
	}

	if len(devices) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, ErrNoDevicesFound
	}

	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].Confidence > devices[j].Confidence
	})
	return devices, nil
}

// Detect returns the single best candidate from a full pass.
func Detect(ctx context.Context, opts *Options) (DeviceInfo, error) {
	devices, err := DetectAllContext(ctx, opts)
	if err != nil {
		return DeviceInfo{}, err
	}
	return devices[0], nil
}
