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

package uart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NoobyNull/CrowDisplay-sub000/detection"
)

func safeOpts() *detection.Options {
	opts := detection.DefaultOptions()
	return &opts
}

func TestClassifyPort_KnownBridge(t *testing.T) {
	t.Parallel()

	port := serialPort{
		Path:         "/dev/ttyUSB0",
		Name:         "/dev/ttyUSB0",
		VIDPID:       "10C4:EA60",
		Manufacturer: "Silicon Labs",
		Product:      "CP2102N USB to UART Bridge Controller",
		SerialNumber: "c0ffee01",
	}

	device, skip := classifyPort(port, safeOpts())
	require.False(t, skip)

	assert.Equal(t, "serial", device.Transport)
	assert.Equal(t, "/dev/ttyUSB0", device.Path)
	assert.Equal(t, detection.Medium, device.Confidence)
	assert.Equal(t, "10C4:EA60", device.VIDPID)
	assert.Equal(t, "Silicon Labs CP210x", device.Metadata["bridge"])
	assert.Equal(t, "Silicon Labs", device.Metadata["manufacturer"])
	assert.Equal(t, "c0ffee01", device.Metadata["serial_number"])

	// The descriptor product is a better display name than the raw path.
	assert.Equal(t, "CP2102N USB to UART Bridge Controller", device.Name)
}

func TestClassifyPort_NormalizesVIDPID(t *testing.T) {
	t.Parallel()

	port := serialPort{Path: "/dev/ttyUSB0", Name: "ttyUSB0", VIDPID: "1a86:7523"}

	device, skip := classifyPort(port, safeOpts())
	require.False(t, skip)
	assert.Equal(t, "1A86:7523", device.VIDPID)
	assert.Equal(t, detection.Medium, device.Confidence)
}

func TestClassifyPort_UnknownIdentity(t *testing.T) {
	t.Parallel()

	port := serialPort{Path: "/dev/ttyUSB3", Name: "ttyUSB3", VIDPID: "DEAD:BEEF"}

	t.Run("SafeKeepsLowConfidence", func(t *testing.T) {
		t.Parallel()
		device, skip := classifyPort(port, safeOpts())
		require.False(t, skip)
		assert.Equal(t, detection.Low, device.Confidence)
	})

	t.Run("PassiveSkips", func(t *testing.T) {
		t.Parallel()
		opts := safeOpts()
		opts.Mode = detection.Passive
		_, skip := classifyPort(port, opts)
		assert.True(t, skip)
	})
}

func TestClassifyPort_Blocklisted(t *testing.T) {
	t.Parallel()

	opts := safeOpts()
	opts.Blocklist = []string{"10C4:EA60"}

	port := serialPort{Path: "/dev/ttyUSB0", Name: "ttyUSB0", VIDPID: "10C4:EA60"}
	_, skip := classifyPort(port, opts)
	assert.True(t, skip)
}

func TestClassifyPort_IgnoredPath(t *testing.T) {
	t.Parallel()

	opts := safeOpts()
	opts.IgnorePaths = []string{"/dev/ttyUSB0"}

	port := serialPort{Path: "/dev/ttyUSB0", Name: "ttyUSB0", VIDPID: "10C4:EA60"}
	_, skip := classifyPort(port, opts)
	assert.True(t, skip)
}

func TestMergePort(t *testing.T) {
	t.Parallel()

	base := serialPort{
		Path: "/dev/ttyUSB0",
		Name: "/dev/ttyUSB0",
	}
	extra := serialPort{
		Path:         "/dev/ttyUSB0",
		Name:         "CP2102N USB to UART",
		VIDPID:       "10C4:EA60",
		Manufacturer: "Silicon Labs",
		SerialNumber: "c0ffee01",
	}

	merged := mergePort(base, extra)
	assert.Equal(t, "10C4:EA60", merged.VIDPID)
	assert.Equal(t, "Silicon Labs", merged.Manufacturer)
	assert.Equal(t, "c0ffee01", merged.SerialNumber)
	assert.Equal(t, "CP2102N USB to UART", merged.Name)
}

func TestMergePort_KeepsExistingFields(t *testing.T) {
	t.Parallel()

	base := serialPort{
		Path:   "/dev/ttyUSB0",
		Name:   "enumerated name",
		VIDPID: "10C4:EA60",
	}
	extra := serialPort{
		Path:   "/dev/ttyUSB0",
		Name:   "platform name",
		VIDPID: "DEAD:BEEF",
	}

	merged := mergePort(base, extra)
	assert.Equal(t, "10C4:EA60", merged.VIDPID)
	assert.Equal(t, "platform name", merged.Name)
}

func TestDetectorTransport(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "serial", New().Transport())
}
