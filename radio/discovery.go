package radio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brutella/dnssd"
	udev "github.com/jochenvg/go-udev"

	"github.com/wittra-tof/rangecore/core"
)

// Device discovery: local USB SDR devices via udev, networked radio
// servers via DNS-SD. Both feed the same DeviceInfo result set that
// backs the --list-devices CLI surface.

// SoapyServiceType is the mDNS service networked SDR bridges announce
// themselves under.
const SoapyServiceType = "_soapy._tcp.local."

// usbSDRVendors maps the USB vendor:product pairs of SDR front ends
// worth surfacing. Anything else on the bus is ignored.
var usbSDRVendors = map[string]string{
	"0403:601f": "lime",   // LimeSDR (FTDI interface)
	"1d50:6108": "lime",   // LimeSDR-USB
	"1d50:6101": "lime",   // LimeSDR-Mini
	"2500:0020": "uhd",    // Ettus B200
	"2500:0021": "uhd",    // Ettus B210
	"0bda:2838": "rtlsdr", // RTL2838
	"1d50:604b": "hackrf", // HackRF Jawbreaker
	"1d50:6089": "hackrf", // HackRF One
	"1d50:60a1": "airspy", // Airspy
}

// DiscoverUSB enumerates USB-attached SDR devices through udev.
func DiscoverUSB() ([]core.DeviceInfo, error) {
	u := udev.Udev{}
	e := u.NewEnumerate()
	if err := e.AddMatchSubsystem("usb"); err != nil {
		return nil, fmt.Errorf("discovery: matching usb subsystem: %w", err)
	}
	devices, err := e.Devices()
	if err != nil {
		return nil, fmt.Errorf("discovery: enumerating usb devices: %w", err)
	}

	var out []core.DeviceInfo
	for _, d := range devices {
		vid := d.PropertyValue("ID_VENDOR_ID")
		pid := d.PropertyValue("ID_MODEL_ID")
		driver, known := usbSDRVendors[vid+":"+pid]
		if !known {
			continue
		}
		out = append(out, core.DeviceInfo{
			Driver: driver,
			Serial: d.PropertyValue("ID_SERIAL_SHORT"),
			Label:  d.PropertyValue("ID_MODEL"),
			Extra: map[string]string{
				"bus":     "usb",
				"vendor":  vid,
				"product": pid,
				"syspath": d.Syspath(),
			},
		})
	}
	return out, nil
}

// DiscoverNetwork browses DNS-SD for networked SDR servers for up to
// timeout and returns every service seen. A deadline expiry is a normal
// end of browsing, not an error.
func DiscoverNetwork(ctx context.Context, timeout time.Duration) ([]core.DeviceInfo, error) {
	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var out []core.DeviceInfo
	add := func(e dnssd.BrowseEntry) {
		host := e.Host
		if len(e.IPs) > 0 {
			host = e.IPs[0].String()
		}
		out = append(out, core.DeviceInfo{
			Driver: "remote",
			Serial: fmt.Sprintf("%s:%d", host, e.Port),
			Label:  e.Name,
			Extra:  e.Text,
		})
	}
	rmv := func(dnssd.BrowseEntry) {}

	err := dnssd.LookupType(browseCtx, SoapyServiceType, add, rmv)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return out, fmt.Errorf("discovery: browsing %s: %w", SoapyServiceType, err)
	}
	return out, nil
}

// Discover merges local USB and networked discovery. A failure on one
// path does not hide results from the other; the first error is
// reported alongside whatever was found.
func Discover(ctx context.Context, networkTimeout time.Duration) ([]core.DeviceInfo, error) {
	usb, usbErr := DiscoverUSB()
	net, netErr := DiscoverNetwork(ctx, networkTimeout)

	out := append(usb, net...)
	if usbErr != nil {
		return out, usbErr
	}
	return out, netErr
}
