//go:build !linux && !darwin && !windows

package uart

import "context"

// getSerialPorts has no platform source here; the enumerator carries
// detection alone.
func getSerialPorts(_ context.Context) ([]serialPort, error) {
	return nil, nil
}

// getSerialPortsFallback mirrors getSerialPorts on platforms without a
// native source
func getSerialPortsFallback(_ context.Context) ([]serialPort, error) {
	return nil, nil
}
