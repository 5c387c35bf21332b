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

// Package uart detects companion dongles presented as USB serial ports.
// It merges the cross-platform enumerator with per-OS sources, ranks
// candidates by how closely their USB identity matches the bridge chips
// companion units ship with, and optionally confirms candidates by
// opening them.
package uart

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/NoobyNull/CrowDisplay-sub000/detection"
	"github.com/NoobyNull/CrowDisplay-sub000/internal/frame"
	"github.com/NoobyNull/CrowDisplay-sub000/internal/transport"
)

const (
	// probeBaudRate matches the companion firmware UART configuration.
	probeBaudRate = 115200

	// trafficWindow is how long Full mode listens for a heartbeat
	// before judging a port silent.
	trafficWindow = 300 * time.Millisecond
)

// serialPort is one enumerated port with whatever USB metadata the
// platform source could recover.
type serialPort struct {
	Path         string
	Name         string
	VIDPID       string
	Manufacturer string
	Product      string
	SerialNumber string
}

// knownBridges maps the USB identities companion units are built with
// to a bridge name. The stock dongle carries a CP2102N; CH340 and FTDI
// boards are common in self-built units, and 303A:1001 is the bare
// ESP32-S3 CDC interface.
var knownBridges = map[string]string{
	"10C4:EA60": "Silicon Labs CP210x",
	"1A86:7523": "WCH CH340",
	"1A86:55D4": "WCH CH9102",
	"0403:6001": "FTDI FT232R",
	"303A:1001": "Espressif USB Serial",
}

// detector implements the detection.Detector interface for serial ports
type detector struct{}

// New creates a new serial port detector
func New() detection.Detector {
	return &detector{}
}

// init registers the detector on package import
func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "serial"
}

// Detect enumerates serial ports and returns ranked companion candidates.
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := enumeratePorts(ctx)
	if err != nil {
		return nil, err
	}

	devices := make([]detection.DeviceInfo, 0, len(ports))
	for _, port := range ports {
		select {
		case <-ctx.Done():
			return devices, detection.ErrDetectionTimeout
		default:
		}

		device, skip := classifyPort(port, opts)
		if skip {
			continue
		}

		if opts.Mode != detection.Passive && !probePort(ctx, &device, opts.Mode) {
			continue
		}

		devices = append(devices, device)
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// enumeratePorts merges the go.bug.st enumerator with the platform
// source. The enumerator covers all platforms; the platform source
// fills in ports or metadata it misses.
func enumeratePorts(ctx context.Context) ([]serialPort, error) {
	byPath := make(map[string]serialPort)

	list, enumErr := enumerator.GetDetailedPortsList()
	if enumErr == nil {
		for _, p := range list {
			sp := serialPort{
				Path:         p.Name,
				Name:         p.Name,
				Product:      p.Product,
				SerialNumber: p.SerialNumber,
			}
			if p.IsUSB && p.VID != "" && p.PID != "" {
				sp.VIDPID = strings.ToUpper(p.VID + ":" + p.PID)
			}
			byPath[sp.Path] = sp
		}
	}

	native, nativeErr := getSerialPorts(ctx)
	if nativeErr != nil {
		native, nativeErr = getSerialPortsFallback(ctx)
	}
	if enumErr != nil && nativeErr != nil {
		return nil, errors.Join(enumErr, nativeErr)
	}
	for _, p := range native {
		existing, ok := byPath[p.Path]
		if !ok {
			byPath[p.Path] = p
			continue
		}
		byPath[p.Path] = mergePort(existing, p)
	}

	ports := make([]serialPort, 0, len(byPath))
	for _, p := range byPath {
		ports = append(ports, p)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Path < ports[j].Path })
	return ports, nil
}

// mergePort fills gaps in the enumerator record from the platform
// source, which often carries richer descriptor strings.
func mergePort(base, extra serialPort) serialPort {
	if base.VIDPID == "" {
		base.VIDPID = extra.VIDPID
	}
	if base.Manufacturer == "" {
		base.Manufacturer = extra.Manufacturer
	}
	if base.Product == "" {
		base.Product = extra.Product
	}
	if base.SerialNumber == "" {
		base.SerialNumber = extra.SerialNumber
	}
	if extra.Name != "" && extra.Name != extra.Path {
		base.Name = extra.Name
	}
	return base
}

// classifyPort turns an enumerated port into a candidate, or skips it.
func classifyPort(port serialPort, opts *detection.Options) (detection.DeviceInfo, bool) {
	if detection.IsPathIgnored(port.Path, opts.IgnorePaths) {
		return detection.DeviceInfo{}, true
	}
	if port.VIDPID != "" && detection.IsBlocked(port.VIDPID, opts.Blocklist) {
		return detection.DeviceInfo{}, true
	}

	device := detection.DeviceInfo{
		Transport: "serial",
		Path:      port.Path,
		Name:      port.Name,
		VIDPID:    strings.ToUpper(port.VIDPID),
		Metadata:  map[string]string{},
	}
	if port.Manufacturer != "" {
		device.Metadata["manufacturer"] = port.Manufacturer
	}
	if port.Product != "" {
		device.Metadata["product"] = port.Product
		if device.Name == device.Path || device.Name == "" {
			device.Name = port.Product
		}
	}
	if port.SerialNumber != "" {
		device.Metadata["serial_number"] = port.SerialNumber
	}

	if bridge, ok := knownBridges[device.VIDPID]; ok {
		device.Confidence = detection.Medium
		device.Metadata["bridge"] = bridge
	} else {
		device.Confidence = detection.Low
		// Without an identity match there is nothing to go on in
		// passive mode.
		if opts.Mode == detection.Passive {
			return detection.DeviceInfo{}, true
		}
	}

	return device, false
}

// probePort confirms a candidate by opening it. In Full mode it also
// listens briefly for companion frame traffic and promotes candidates
// that show some. Returns false when the candidate should be dropped.
func probePort(ctx context.Context, device *detection.DeviceInfo, mode detection.Mode) bool {
	port, err := serial.Open(device.Path, &serial.Mode{BaudRate: probeBaudRate})
	if err != nil {
		device.Metadata["open_error"] = err.Error()
		// A busy port may still be the companion when its identity
		// says so; anonymous ports that cannot be opened are noise.
		return device.Confidence >= detection.Medium
	}
	defer func() { _ = port.Close() }()

	if mode == detection.Safe {
		return true
	}

	if listenForTraffic(ctx, port) {
		device.Confidence = detection.High
		device.Metadata["traffic"] = "frame"
		return true
	}
	return device.Confidence >= detection.Medium
}

// listenForTraffic watches an open port for the frame start byte. The
// companion heartbeats on its own, so a short window is enough.
func listenForTraffic(ctx context.Context, port serial.Port) bool {
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		return false
	}

	buf := make([]byte, 64)
	found, err := transport.TimeoutRetry(trafficWindow, func() (bool, bool, error) {
		select {
		case <-ctx.Done():
			return false, false, ctx.Err()
		default:
		}

		n, readErr := port.Read(buf)
		if readErr != nil {
			return false, false, readErr
		}
		if n > 0 && bytes.IndexByte(buf[:n], frame.StartByte) >= 0 {
			return true, false, nil
		}
		return false, true, nil
	})
	return err == nil && found
}
