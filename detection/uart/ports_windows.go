//go:build windows

package uart

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

// getSerialPorts enumerates COM ports on Windows from two sources:
// the SERIALCOMM registry map (fast, no metadata) and SetupAPI (slow,
// carries friendly name and USB identity). SetupAPI entries win when
// a port shows up in both.
func getSerialPorts(_ context.Context) ([]serialPort, error) {
	regPorts, regErr := serialcommPorts()
	apiPorts, apiErr := setupAPIPorts()
	if regErr != nil && apiErr != nil {
		return nil, errors.Join(regErr, apiErr)
	}

	merged := make(map[string]serialPort)
	for _, p := range regPorts {
		merged[p.Path] = p
	}
	for _, p := range apiPorts {
		merged[p.Path] = p
	}

	ports := make([]serialPort, 0, len(merged))
	for _, p := range merged {
		ports = append(ports, p)
	}
	return ports, nil
}

// serialcommPorts reads HKLM\HARDWARE\DEVICEMAP\SERIALCOMM, the
// kernel's live map of COM port names.
func serialcommPorts() ([]serialPort, error) {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, `HARDWARE\DEVICEMAP\SERIALCOMM`, registry.QUERY_VALUE)
	if err != nil {
		return nil, err
	}
	defer key.Close()

	names, err := key.ReadValueNames(-1)
	if err != nil {
		return nil, err
	}

	ports := make([]serialPort, 0, len(names))
	for _, name := range names {
		com, _, err := key.GetStringValue(name)
		if err != nil {
			continue
		}
		ports = append(ports, serialPort{Path: com, Name: com})
	}
	return ports, nil
}

// SetupAPI device registry property codes.
const (
	spdrpHardwareID   = 0x00000001
	spdrpMfg          = 0x0000000B
	spdrpFriendlyName = 0x0000000C

	digcfPresent = 0x00000002
)

// spDevinfoData mirrors SP_DEVINFO_DATA.
type spDevinfoData struct {
	cbSize    uint32
	classGuid windows.GUID
	devInst   uint32
	reserved  uintptr
}

// {4D36E978-E325-11CE-BFC1-08002BE10318}, the Ports device setup class.
var portsClassGUID = windows.GUID{
	Data1: 0x4d36e978,
	Data2: 0xe325,
	Data3: 0x11ce,
	Data4: [8]byte{0xbf, 0xc1, 0x08, 0x00, 0x2b, 0xe1, 0x03, 0x18},
}

var (
	comInNameRe = regexp.MustCompile(`\((COM\d+)\)`)
	hwidRe      = regexp.MustCompile(`VID_([0-9A-F]{4}).*PID_([0-9A-F]{4})`)
)

// setupAPIPorts walks the present members of the Ports device class
// and picks out the ones whose friendly name carries a COM number.
func setupAPIPorts() ([]serialPort, error) {
	setupapi := windows.NewLazySystemDLL("setupapi.dll")
	getClassDevs := setupapi.NewProc("SetupDiGetClassDevsW")
	enumDeviceInfo := setupapi.NewProc("SetupDiEnumDeviceInfo")
	getProperty := setupapi.NewProc("SetupDiGetDeviceRegistryPropertyW")
	destroyInfoList := setupapi.NewProc("SetupDiDestroyDeviceInfoList")

	devInfo, _, _ := getClassDevs.Call(
		uintptr(unsafe.Pointer(&portsClassGUID)), 0, 0, digcfPresent)
	if devInfo == uintptr(windows.InvalidHandle) {
		return nil, windows.GetLastError()
	}
	defer destroyInfoList.Call(devInfo)

	var data spDevinfoData
	data.cbSize = uint32(unsafe.Sizeof(data))

	var ports []serialPort
	for i := uint32(0); ; i++ {
		ret, _, _ := enumDeviceInfo.Call(devInfo, uintptr(i), uintptr(unsafe.Pointer(&data)))
		if ret == 0 {
			break
		}

		name := stringProperty(getProperty, devInfo, &data, spdrpFriendlyName)
		m := comInNameRe.FindStringSubmatch(name)
		if m == nil {
			continue
		}

		port := serialPort{
			Path:         m[1],
			Name:         name,
			Manufacturer: stringProperty(getProperty, devInfo, &data, spdrpMfg),
		}

		// Hardware ID looks like USB\VID_10C4&PID_EA60&REV_0100.
		hwid := strings.ToUpper(stringProperty(getProperty, devInfo, &data, spdrpHardwareID))
		if hm := hwidRe.FindStringSubmatch(hwid); hm != nil {
			port.VIDPID = hm[1] + ":" + hm[2]
		}

		// The part of the friendly name before " (COMn)" is the product.
		if n := strings.Index(name, " ("); n > 0 {
			port.Product = name[:n]
		}

		ports = append(ports, port)
	}
	return ports, nil
}

// stringProperty reads one UTF-16 device property with the usual
// size-then-fetch double call.
func stringProperty(proc *windows.LazyProc, devInfo uintptr, data *spDevinfoData, property uint32) string {
	var size uint32
	proc.Call(
		devInfo,
		uintptr(unsafe.Pointer(data)),
		uintptr(property),
		0,
		0,
		0,
		uintptr(unsafe.Pointer(&size)),
	)
	if size == 0 {
		return ""
	}

	var propType uint32
	buf := make([]uint16, size/2)
	ret, _, _ := proc.Call(
		devInfo,
		uintptr(unsafe.Pointer(data)),
		uintptr(property),
		uintptr(unsafe.Pointer(&propType)),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(size),
		0,
	)
	if ret == 0 {
		return ""
	}
	return windows.UTF16ToString(buf)
}

// getSerialPortsFallback retries enumeration with SetupAPI first,
// then the registry map.
func getSerialPortsFallback(_ context.Context) ([]serialPort, error) {
	if ports, err := setupAPIPorts(); err == nil {
		return ports, nil
	}
	return serialcommPorts()
}
