package xarm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/nathan-zeke/xarm-servo/transports"
)

// readPollInterval is how long to back off when the transport has no
// data yet.
const readPollInterval = 5 * time.Millisecond

// Controller drives an xArm/LeArm controller board over a single
// transport. The protocol carries no request identifiers, so every
// request/response exchange holds an exclusive lock on the transport;
// all methods are safe for concurrent use and block the caller.
type Controller struct {
	transport Transport
	timeout   time.Duration
	clock     clock.Clock
	log       zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// Config holds configuration for creating a new Controller.
type Config struct {
	// Transport is the underlying communication channel. If nil,
	// Device must be specified.
	Transport Transport

	// Device identifies the board when Transport is nil: "USB" opens
	// the first HID device, "USB<serial>" a specific one by serial
	// number, anything else is treated as a serial port name
	// (e.g. "COM3", "/dev/ttyUSB0").
	Device string

	// Timeout bounds each response wait. Default is 1 second.
	Timeout time.Duration

	// Clock is the time source for waits and deadlines. Defaults to
	// the wall clock; tests inject a mock.
	Clock clock.Clock

	// Logger, when set, receives debug-level TX/RX frame traces.
	Logger *zerolog.Logger
}

// NewController creates a controller with the given configuration.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	transport := cfg.Transport
	if transport == nil {
		if cfg.Device == "" {
			return nil, errors.New("either Transport or Device must be specified")
		}
		var err error
		transport, err = openDevice(cfg.Device, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", cfg.Device, err)
		}
	}

	if err := transport.SetReadTimeout(readPollInterval); err != nil {
		return nil, &TransportError{Op: "set timeout", Err: err}
	}

	return &Controller{
		transport: transport,
		timeout:   cfg.Timeout,
		clock:     cfg.Clock,
		log:       log,
	}, nil
}

// openDevice resolves a device identifier to an open transport.
func openDevice(device string, timeout time.Duration) (Transport, error) {
	if strings.HasPrefix(device, "USB") {
		return transports.OpenHID(transports.HIDConfig{
			Serial:  strings.TrimPrefix(device, "USB"),
			Timeout: timeout,
		})
	}
	return transports.OpenSerial(transports.SerialConfig{
		Port:    device,
		Timeout: timeout,
	})
}

// Close closes the controller and its transport.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	return c.transport.Close()
}

// MoveOptions controls a Move call.
type MoveOptions struct {
	// Duration is the travel time for every servo in the batch.
	// Default is 1 second.
	Duration time.Duration

	// Wait blocks the call for Duration after the command is written.
	// The board reports no completion event; this is a coarse timed
	// wait, cancellable through the context.
	Wait bool
}

// Move commands every target to its position in one batched write, so
// all servos start near-simultaneously. Validation is all-or-nothing:
// any out-of-range target fails the call before anything is sent.
func (c *Controller) Move(ctx context.Context, opts MoveOptions, targets ...Target) error {
	if len(targets) == 0 {
		return &ArgumentError{Param: "targets", Value: len(targets), Reason: "at least one target required"}
	}
	if opts.Duration == 0 {
		opts.Duration = time.Second
	}
	durationMS := int(opts.Duration / time.Millisecond)
	if durationMS < 0 || durationMS > MaxDurationMS {
		return &ArgumentError{Param: "duration", Value: opts.Duration, Reason: "must fit in 0..65535 milliseconds"}
	}

	servos, err := resolveTargets(targets)
	if err != nil {
		return err
	}
	entries := make([]ServoPosition, len(servos))
	for i, s := range servos {
		entries[i] = ServoPosition{ID: s.ID(), Position: s.Position()}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	err = c.sendLocked(MovePacket(entries, durationMS))
	c.mu.Unlock()
	if err != nil {
		return err
	}

	if opts.Wait {
		t := c.clock.Timer(opts.Duration)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Position queries one servo and returns its raw position. A *Servo
// target is updated in place with the reading.
func (c *Controller) Position(ctx context.Context, target Target) (int, error) {
	positions, err := c.Positions(ctx, target)
	if err != nil {
		return 0, err
	}
	return positions[0], nil
}

// Positions queries each target in order, one request/response round
// trip per servo, and returns the raw positions in matching order.
// Every *Servo target is updated in place. A query is always issued;
// a record's stored position is never trusted as fresh.
func (c *Controller) Positions(ctx context.Context, targets ...Target) ([]int, error) {
	if len(targets) == 0 {
		return nil, &ArgumentError{Param: "targets", Value: len(targets), Reason: "at least one target required"}
	}
	servos, err := resolveTargets(targets)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	positions := make([]int, len(servos))
	for i, s := range servos {
		pos, err := c.queryPositionLocked(ctx, s.ID())
		if err != nil {
			return nil, err
		}
		s.position = pos
		positions[i] = pos
	}
	return positions, nil
}

// Angle queries one servo and returns its position in degrees.
func (c *Controller) Angle(ctx context.Context, target Target) (float64, error) {
	pos, err := c.Position(ctx, target)
	if err != nil {
		return 0, err
	}
	return ToAngle(pos), nil
}

// Angles queries each target in order and returns degrees.
func (c *Controller) Angles(ctx context.Context, targets ...Target) ([]float64, error) {
	positions, err := c.Positions(ctx, targets...)
	if err != nil {
		return nil, err
	}
	angles := make([]float64, len(positions))
	for i, pos := range positions {
		angles[i] = ToAngle(pos)
	}
	return angles, nil
}

// ListServos probes IDs 1..maxID with position queries and returns the
// IDs that answered, in ascending order. A timeout counts as absent;
// any other failure aborts the scan. maxID <= 0 selects the default of
// 6; the manufacturer ceiling is 254. Each probe is a full transport
// round trip, so large ranges are expensive.
func (c *Controller) ListServos(ctx context.Context, maxID int) ([]int, error) {
	if maxID <= 0 {
		maxID = DefaultServoCount
	}
	if maxID > MaxServoID {
		return nil, &ArgumentError{Param: "maxID", Value: maxID, Reason: "must not exceed 254"}
	}

	var found []int
	for id := MinServoID; id <= maxID; id++ {
		select {
		case <-ctx.Done():
			return found, ctx.Err()
		default:
		}

		if _, err := c.Position(ctx, ID(id)); err != nil {
			if IsTimeout(err) {
				continue // no servo at this ID
			}
			return nil, err
		}
		found = append(found, id)
	}
	return found, nil
}

// ServoOff cuts power to the targeted servos in one command. With no
// targets it addresses IDs 1..6, the standard arm layout.
func (c *Controller) ServoOff(ctx context.Context, targets ...Target) error {
	var ids []int
	if len(targets) == 0 {
		for id := MinServoID; id <= DefaultServoCount; id++ {
			ids = append(ids, id)
		}
	} else {
		servos, err := resolveTargets(targets)
		if err != nil {
			return err
		}
		ids = make([]int, len(servos))
		for i, s := range servos {
			ids[i] = s.ID()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	return c.sendLocked(ServoOffPacket(ids))
}

// BatteryVoltage reads the board supply voltage in volts.
func (c *Controller) BatteryVoltage(ctx context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}

	if err := c.sendLocked(BatteryQueryPacket()); err != nil {
		return 0, err
	}
	raw, err := c.readFrameLocked(ctx)
	if err != nil {
		return 0, err
	}
	millivolts, err := DecodeBatteryResponse(raw)
	if err != nil {
		return 0, err
	}
	return float64(millivolts) / 1000.0, nil
}

// WriteServoID assigns a new ID to every servo on the bus. The wire
// command is a broadcast with no per-servo addressing, so unless
// overwriteAll is set the call first probes for presence and refuses
// to transmit when more than one servo answers. Zero detected servos
// is ErrNoServos; more than one is a *SafetyError.
func (c *Controller) WriteServoID(ctx context.Context, newID int, overwriteAll bool) error {
	if err := validateID(newID); err != nil {
		return err
	}

	if !overwriteAll {
		present, err := c.ListServos(ctx, DefaultServoCount)
		if err != nil {
			return err
		}
		if len(present) == 0 {
			return ErrNoServos
		}
		if len(present) > 1 {
			return &SafetyError{Detected: present}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	// Broadcast; the firmware sends no acknowledgment.
	return c.sendLocked(ServoIDWritePacket(newID))
}

// ReadServoID asks the bus for a servo ID. The query is a broadcast,
// so the answer is only meaningful with a single servo connected.
func (c *Controller) ReadServoID(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}

	if err := c.sendLocked(ServoIDReadPacket()); err != nil {
		return 0, err
	}
	raw, err := c.readFrameLocked(ctx)
	if err != nil {
		return 0, err
	}
	return DecodeServoIDResponse(raw)
}

// queryPositionLocked performs one position request/response exchange.
func (c *Controller) queryPositionLocked(ctx context.Context, id int) (int, error) {
	if err := c.sendLocked(PositionQueryPacket([]int{id})); err != nil {
		return 0, err
	}
	raw, err := c.readFrameLocked(ctx)
	if err != nil {
		return 0, err
	}
	positions, err := DecodePositionResponse(raw)
	if err != nil {
		return 0, err
	}
	if len(positions) < 1 || positions[0].ID != id {
		return 0, &FrameError{Reason: fmt.Sprintf("response does not match servo %d", id), Data: raw}
	}
	return positions[0].Position, nil
}

// sendLocked flushes stale input and writes one packet. Callers must
// hold c.mu.
func (c *Controller) sendLocked(packet []byte) error {
	c.log.Debug().Hex("tx", packet).Msg("frame out")

	if err := c.transport.Flush(); err != nil {
		return &TransportError{Op: "flush", Err: err}
	}
	n, err := c.transport.Write(packet)
	if err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	if n != len(packet) {
		return &TransportError{Op: "write", Err: fmt.Errorf("short write: %d of %d bytes", n, len(packet))}
	}
	return nil
}

// readFrameLocked accumulates transport reads into one complete frame
// and returns its raw bytes. The first two bytes received must be the
// preamble; there is no resynchronization scan. Callers must hold c.mu.
func (c *Controller) readFrameLocked(ctx context.Context) ([]byte, error) {
	buf := make([]byte, 0, 64)
	chunk := make([]byte, 64)
	start := c.clock.Now()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if c.clock.Since(start) > c.timeout {
			return nil, ErrTimeout
		}

		n, err := c.transport.Read(chunk)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, &TransportError{Op: "read", Err: err}
		}
		if n == 0 {
			c.clock.Sleep(readPollInterval)
			continue
		}
		buf = append(buf, chunk[:n]...)

		if buf[0] != headerByte || (len(buf) >= 2 && buf[1] != headerByte) {
			return nil, &FrameError{Reason: "bad preamble", Data: buf}
		}
		if total := FrameLen(buf); total >= minFrameLen && len(buf) >= total {
			frame := buf[:total]
			c.log.Debug().Hex("rx", frame).Msg("frame in")
			return frame, nil
		}
	}
}
