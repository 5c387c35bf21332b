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

package detection

import (
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultBlocklist returns the USB identities detection must never
// probe, as VID:PID hex pairs. Safe mode opens candidate ports, and
// some serial hardware reacts badly to that; entries accumulate here
// as problem devices are reported. Ships empty.
func DefaultBlocklist() []string {
	return []string{}
}

// IsBlocked reports whether a VID:PID identity appears in the
// blocklist. Comparison ignores case and surrounding whitespace.
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = strings.TrimSpace(vidpid)
	if vidpid == "" {
		return false
	}
	for _, blocked := range blocklist {
		if strings.EqualFold(vidpid, strings.TrimSpace(blocked)) {
			return true
		}
	}
	return false
}

// Descriptor spellings seen across platform enumeration sources.
var (
	vidpidPair = regexp.MustCompile(`^([0-9A-F]{1,4}):([0-9A-F]{1,4})$`)
	vidLabel   = regexp.MustCompile(`(?:VID[:=]|VENDOR=)([0-9A-F]{1,4})`)
	pidLabel   = regexp.MustCompile(`(?:PID[:=]|PRODUCT=)([0-9A-F]{1,4})`)
)

// ParseVIDPID extracts a normalized VID:PID pair from a USB
// descriptor string. Enumeration sources disagree on spelling
// ("VID:10C4 PID:EA60", "vendor=10c4 product=ea60", a bare
// "10C4:EA60"); all collapse to the uppercase colon form. Returns ""
// when the descriptor carries no usable identity.
func ParseVIDPID(descriptor string) string {
	d := strings.ToUpper(strings.TrimSpace(descriptor))
	if d == "" {
		return ""
	}

	if m := vidpidPair.FindStringSubmatch(d); m != nil {
		return m[1] + ":" + m[2]
	}

	vid := vidLabel.FindStringSubmatch(d)
	pid := pidLabel.FindStringSubmatch(d)
	if vid == nil || pid == nil {
		return ""
	}
	return vid[1] + ":" + pid[1]
}

// IsPathIgnored reports whether a device path appears in the caller's
// ignore list. Paths compare both verbatim and in canonical form, so
// "/dev/../dev/ttyUSB0" and "com2" still match their cleaner
// spellings.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	canonical := canonicalPath(devicePath)

	for _, ignore := range ignorePaths {
		if ignore == "" {
			continue
		}
		if devicePath == ignore || canonical == canonicalPath(ignore) {
			return true
		}
	}
	return false
}

// canonicalPath resolves relative components and folds case, which
// is how Windows compares COM port names.
func canonicalPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
