//go:build linux

package uart

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// getSerialPorts returns available serial ports on Linux using sysfs
func getSerialPorts(ctx context.Context) ([]serialPort, error) {
	entries, err := filepath.Glob("/sys/class/tty/*")
	if err != nil {
		return nil, err
	}

	var ports []serialPort
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}

		name := filepath.Base(entry)
		devPath := "/dev/" + name

		// Only ttys backed by real hardware have a device link.
		deviceDir := filepath.Join(entry, "device")
		if _, err := os.Stat(deviceDir); err != nil {
			continue
		}

		// Walk up the sysfs tree to the USB device that carries the
		// descriptor attributes. Non-USB UARTs (ttyS*) never match and
		// are skipped as motherboard ports.
		usbDir, ok := findUSBDevice(deviceDir)
		if !ok {
			continue
		}

		port := serialPort{
			Path:         devPath,
			Name:         name,
			Manufacturer: readSysfsAttr(usbDir, "manufacturer"),
			Product:      readSysfsAttr(usbDir, "product"),
			SerialNumber: readSysfsAttr(usbDir, "serial"),
		}

		vid := readSysfsAttr(usbDir, "idVendor")
		pid := readSysfsAttr(usbDir, "idProduct")
		if vid != "" && pid != "" {
			port.VIDPID = strings.ToUpper(vid + ":" + pid)
		}

		ports = append(ports, port)
	}

	return ports, nil
}

// findUSBDevice walks up from a tty's device directory looking for the
// sysfs node holding the USB descriptor files.
func findUSBDevice(dir string) (string, bool) {
	for i := 0; i < 4; i++ {
		if _, err := os.Stat(filepath.Join(dir, "idVendor")); err == nil {
			return dir, true
		}
		resolved, err := filepath.EvalSymlinks(dir)
		if err != nil {
			return "", false
		}
		dir = filepath.Dir(resolved)
	}
	return "", false
}

// readSysfsAttr reads a single sysfs attribute file, empty on error.
func readSysfsAttr(dir, attr string) string {
	data, err := os.ReadFile(filepath.Join(dir, attr))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// getSerialPortsFallback lists USB serial device nodes without metadata
func getSerialPortsFallback(_ context.Context) ([]serialPort, error) {
	var ports []serialPort
	for _, pattern := range []string{"/dev/ttyUSB*", "/dev/ttyACM*"} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, path := range matches {
			ports = append(ports, serialPort{
				Path: path,
				Name: filepath.Base(path),
			})
		}
	}
	return ports, nil
}
