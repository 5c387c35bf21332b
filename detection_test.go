package crowlink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NoobyNull/CrowDisplay-sub000/detection"
)

// scriptedDetector feeds canned results into the detection registry so
// the auto-detect path can run without hardware. The registry has no
// unregister, so one instance serves every subtest.
type scriptedDetector struct {
	gotOpts *detection.Options
	devices []detection.DeviceInfo
}

func (*scriptedDetector) Transport() string { return "mock" }

func (d *scriptedDetector) Detect(_ context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	d.gotOpts = opts
	if len(d.devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return d.devices, nil
}

// TestConnectLinkAutoDetection drives ConnectLink's detection path end
// to end against a scripted detector. Subtests mutate the shared
// detector, so they must not run in parallel.
func TestConnectLinkAutoDetection(t *testing.T) {
	scripted := &scriptedDetector{}
	detection.RegisterDetector(scripted)

	companionDevice := detection.DeviceInfo{
		Transport:  "serial",
		Path:       "/dev/ttyACM7",
		Name:       "CrowDisplay Companion",
		VIDPID:     "10C4:EA60",
		Confidence: detection.Medium,
	}

	t.Run("FindsAndProbesCompanion", func(t *testing.T) {
		scripted.devices = []detection.DeviceInfo{companionDevice}

		var gotDevice detection.DeviceInfo
		mock := NewMockTransport()
		mock.EnableAutoAck(AckOK)

		link, err := ConnectLink("",
			WithAutoDetection(),
			WithTransportFromDeviceFactory(func(device detection.DeviceInfo) (Transport, error) {
				gotDevice = device
				return mock, nil
			}),
			WithLinkOptions(WithoutHeartbeat()),
		)
		require.NoError(t, err)
		defer func() { _ = link.Close() }()

		assert.Equal(t, "/dev/ttyACM7", gotDevice.Path)
		assert.Equal(t, "10C4:EA60", gotDevice.VIDPID)

		// The probe ping must have gone out over the new transport.
		assert.Equal(t, 1, mock.SentOfType(TypePing))
	})

	t.Run("DetectionUsesSafeMode", func(t *testing.T) {
		require.NotNil(t, scripted.gotOpts)
		assert.Equal(t, detection.Safe, scripted.gotOpts.Mode)
	})

	t.Run("DeviceFactoryRequired", func(t *testing.T) {
		scripted.devices = []detection.DeviceInfo{companionDevice}

		_, err := ConnectLink("", WithAutoDetection())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "transport device factory not provided")
	})

	t.Run("NoDevicesFound", func(t *testing.T) {
		scripted.devices = nil

		_, err := ConnectLink("",
			WithAutoDetection(),
			WithTransportFromDeviceFactory(func(detection.DeviceInfo) (Transport, error) {
				t.Fatal("factory must not run without a device")
				return nil, nil
			}),
		)
		require.ErrorIs(t, err, detection.ErrNoDevicesFound)
	})

	t.Run("FactoryErrorPropagates", func(t *testing.T) {
		scripted.devices = []detection.DeviceInfo{companionDevice}

		_, err := ConnectLink("",
			WithAutoDetection(),
			WithTransportFromDeviceFactory(func(detection.DeviceInfo) (Transport, error) {
				return nil, ErrTransportNotReady
			}),
		)
		require.ErrorIs(t, err, ErrTransportNotReady)
	})
}
