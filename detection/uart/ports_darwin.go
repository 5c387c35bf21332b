//go:build darwin

package uart

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ioreg prints IOKit registry properties as quoted strings or bare
// decimal numbers.
var (
	calloutRe  = regexp.MustCompile(`"IOCalloutDevice"\s*=\s*"([^"]+)"`)
	vendorRe   = regexp.MustCompile(`"idVendor"\s*=\s*(\d+)`)
	productRe  = regexp.MustCompile(`"idProduct"\s*=\s*(\d+)`)
	mfgNameRe  = regexp.MustCompile(`"USB Vendor Name"\s*=\s*"([^"]+)"`)
	prodNameRe = regexp.MustCompile(`"USB Product Name"\s*=\s*"([^"]+)"`)
	serialNoRe = regexp.MustCompile(`"USB Serial Number"\s*=\s*"([^"]+)"`)
)

func firstGroup(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

// getSerialPorts enumerates serial ports on macOS via the IOKit
// registry, which carries the USB identity and metadata the probe
// order wants. Falls back to globbing /dev when ioreg is unavailable
// or returns nothing useful.
func getSerialPorts(ctx context.Context) ([]serialPort, error) {
	cmd := exec.CommandContext(ctx, "ioreg", "-r", "-c", "IOSerialBSDClient", "-a")
	output, err := cmd.Output()
	if err != nil {
		return getSerialPortsFallback(ctx)
	}

	var ports []serialPort
	for _, entry := range strings.Split(string(output), "+-o ") {
		if !strings.Contains(entry, "IOSerialBSDClient") {
			continue
		}
		path := firstGroup(calloutRe, entry)
		if path == "" {
			continue
		}
		name := filepath.Base(path)
		if !darwinDeviceWanted(name) {
			continue
		}
		ports = append(ports, serialPort{
			Path:         path,
			Name:         name,
			VIDPID:       ioregVIDPID(entry),
			Manufacturer: firstGroup(mfgNameRe, entry),
			Product:      firstGroup(prodNameRe, entry),
			SerialNumber: firstGroup(serialNoRe, entry),
		})
	}

	if len(ports) == 0 {
		return getSerialPortsFallback(ctx)
	}
	return ports, nil
}

// ioregVIDPID converts ioreg's decimal idVendor/idProduct fields to
// the VID:PID hex form the blocklist uses.
func ioregVIDPID(entry string) string {
	vid, err := strconv.Atoi(firstGroup(vendorRe, entry))
	if err != nil {
		return ""
	}
	pid, err := strconv.Atoi(firstGroup(productRe, entry))
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%04X:%04X", vid, pid)
}

// getSerialPortsFallback lists serial devices straight from /dev, without USB
// metadata. Callout (cu.*) devices win over their tty.* twins because
// they do not block on carrier detect.
func getSerialPortsFallback(_ context.Context) ([]serialPort, error) {
	var ports []serialPort
	seen := make(map[string]bool)

	if matches, err := filepath.Glob("/dev/cu.*"); err == nil {
		for _, path := range matches {
			name := filepath.Base(path)
			if strings.HasPrefix(name, "cu.Bluetooth") || !darwinDeviceWanted(name) {
				continue
			}
			ports = append(ports, serialPort{Path: path, Name: name})
			seen[strings.TrimPrefix(name, "cu.")] = true
		}
	}

	if matches, err := filepath.Glob("/dev/tty.*"); err == nil {
		for _, path := range matches {
			name := filepath.Base(path)
			if strings.HasPrefix(name, "tty.Bluetooth") || !darwinDeviceWanted(name) {
				continue
			}
			if seen[strings.TrimPrefix(name, "tty.")] {
				continue
			}
			ports = append(ports, serialPort{Path: path, Name: name})
		}
	}

	return ports, nil
}

// darwinDeviceWanted filters out obvious system devices while keeping
// the USB-serial bridge names the bridge dongle shows up under.
func darwinDeviceWanted(deviceName string) bool {
	name := strings.ToLower(deviceName)

	// Bridge chips seen in the wild: CP210x, CH340/CH341, FTDI-style
	// usbserial, and native CDC (usbmodem) on ESP32-S3 dongles.
	for _, bridge := range []string{"usbserial", "slab_usbtouart", "usbmodem", "wchusbserial"} {
		if strings.Contains(name, bridge) {
			return true
		}
	}

	for _, sys := range []string{"console", "debug", "system", "kernel"} {
		if strings.Contains(name, sys) {
			return false
		}
	}
	return true
}
