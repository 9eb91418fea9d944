package transports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// USB identity of the controller board's HID interface.
const (
	usbVendorID  gousb.ID = 0x0483
	usbProductID gousb.ID = 0x5750
)

// reportSize is the HID report length in both directions. Frames are
// padded out to a full report on write and arrive padded on read.
const reportSize = 64

// HIDTransport implements the controller transport over the board's
// USB HID interface using interrupt transfers.
type HIDTransport struct {
	usbCtx  *gousb.Context
	dev     *gousb.Device
	devCfg  *gousb.Config
	iface   *gousb.Interface
	in      *gousb.InEndpoint
	out     *gousb.OutEndpoint
	timeout time.Duration
}

// HIDConfig holds configuration for opening the USB HID interface.
type HIDConfig struct {
	// Serial selects a specific board by USB serial number; empty
	// opens the first matching device.
	Serial string

	// Timeout is the read timeout. Default is 1 second.
	Timeout time.Duration
}

// OpenHID opens the board's USB HID interface.
func OpenHID(cfg HIDConfig) (*HIDTransport, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}

	usbCtx := gousb.NewContext()

	dev, err := openHIDDevice(usbCtx, cfg.Serial)
	if err != nil {
		usbCtx.Close()
		return nil, err
	}

	// Detach the kernel HID driver if one has claimed the interface.
	// Not supported on every platform; claiming below will tell us.
	dev.SetAutoDetach(true)

	devCfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		usbCtx.Close()
		return nil, fmt.Errorf("failed to select USB configuration: %w", err)
	}

	iface, err := devCfg.Interface(0, 0)
	if err != nil {
		devCfg.Close()
		dev.Close()
		usbCtx.Close()
		return nil, fmt.Errorf("failed to claim HID interface: %w", err)
	}

	t := &HIDTransport{
		usbCtx:  usbCtx,
		dev:     dev,
		devCfg:  devCfg,
		iface:   iface,
		timeout: cfg.Timeout,
	}

	for _, ep := range iface.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeInterrupt {
			continue
		}
		switch ep.Direction {
		case gousb.EndpointDirectionIn:
			if t.in == nil {
				t.in, err = iface.InEndpoint(ep.Number)
			}
		case gousb.EndpointDirectionOut:
			if t.out == nil {
				t.out, err = iface.OutEndpoint(ep.Number)
			}
		}
		if err != nil {
			t.Close()
			return nil, fmt.Errorf("failed to open endpoint %d: %w", ep.Number, err)
		}
	}

	if t.in == nil || t.out == nil {
		t.Close()
		return nil, errors.New("device has no interrupt IN/OUT endpoint pair")
	}

	return t, nil
}

// openHIDDevice finds and opens the board, optionally by serial number.
func openHIDDevice(usbCtx *gousb.Context, serial string) (*gousb.Device, error) {
	if serial == "" {
		dev, err := usbCtx.OpenDeviceWithVIDPID(usbVendorID, usbProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to open USB device: %w", err)
		}
		if dev == nil {
			return nil, errors.New("controller not found on USB")
		}
		return dev, nil
	}

	devs, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == usbVendorID && desc.Product == usbProductID
	})
	if err != nil {
		for _, d := range devs {
			d.Close()
		}
		return nil, fmt.Errorf("failed to open USB devices: %w", err)
	}

	var match *gousb.Device
	for _, d := range devs {
		if match == nil {
			if sn, snErr := d.SerialNumber(); snErr == nil && sn == serial {
				match = d
				continue
			}
		}
		d.Close()
	}
	if match == nil {
		return nil, fmt.Errorf("no controller with serial number %q", serial)
	}
	return match, nil
}

// Read returns one HID report, or (0, nil) when the timeout elapses
// with no data.
func (t *HIDTransport) Read(p []byte) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	buf := make([]byte, t.in.Desc.MaxPacketSize)
	n, err := t.in.ReadContext(ctx, buf)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, nil
		}
		return 0, err
	}
	return copy(p, buf[:n]), nil
}

// Write sends p as a single zero-padded HID report.
func (t *HIDTransport) Write(p []byte) (int, error) {
	if len(p) > reportSize {
		return 0, fmt.Errorf("frame of %d bytes exceeds the %d byte report", len(p), reportSize)
	}
	report := make([]byte, reportSize)
	copy(report, p)

	if _, err := t.out.Write(report); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (t *HIDTransport) Close() error {
	if t.iface != nil {
		t.iface.Close()
		t.iface = nil
	}
	if t.devCfg != nil {
		t.devCfg.Close()
		t.devCfg = nil
	}
	if t.dev != nil {
		t.dev.Close()
		t.dev = nil
	}
	if t.usbCtx != nil {
		t.usbCtx.Close()
		t.usbCtx = nil
	}
	return nil
}

func (t *HIDTransport) SetReadTimeout(timeout time.Duration) error {
	t.timeout = timeout
	return nil
}

// Flush drains any stale reports buffered on the IN endpoint.
func (t *HIDTransport) Flush() error {
	buf := make([]byte, t.in.Desc.MaxPacketSize)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		n, err := t.in.ReadContext(ctx, buf)
		cancel()
		if n == 0 || err != nil {
			break
		}
	}
	return nil
}

// SerialNumber returns the opened board's USB serial number.
func (t *HIDTransport) SerialNumber() (string, error) {
	return t.dev.SerialNumber()
}
