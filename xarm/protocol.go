// Package xarm implements the control protocol of the LewanSoul/Hiwonder
// xArm and LeArm bus-servo controller boards.
package xarm

import (
	"encoding/binary"
)

// Frame preamble. Every frame on the wire starts with two of these.
const headerByte = 0x55

// Command codes per the controller firmware.
const (
	CmdServoMove         byte = 0x03
	CmdGetBatteryVoltage byte = 0x0F
	CmdServoStop         byte = 0x14
	CmdGetServoPosition  byte = 0x15
	CmdServoIDWrite      byte = 0x1B // broadcast: applies to every servo on the bus
	CmdServoIDRead       byte = 0x1C
)

// Servo ID and position limits.
const (
	MinServoID = 1
	MaxServoID = 254

	PositionMin    = 0
	PositionMax    = 1000
	PositionCenter = 500
)

// DefaultServoCount is the number of servos on a standard arm, used as
// the conservative ceiling for scans and all-servo operations.
const DefaultServoCount = 6

// MaxDurationMS is the largest move duration the wire format can carry.
const MaxDurationMS = 0xFFFF

// minFrameLen is preamble(2) + length(1) + command(1).
const minFrameLen = 4

// ServoPosition pairs a servo ID with a raw position value. It is the
// unit of the move command payload and of position query replies.
type ServoPosition struct {
	ID       int
	Position int
}

// Frame is a decoded controller frame: a command code and its payload.
type Frame struct {
	Cmd    byte
	Params []byte
}

// EncodeFrame builds a wire frame around the given command and payload.
// The length byte counts the command byte, the length byte itself and
// the payload, per the firmware's convention.
func EncodeFrame(cmd byte, params []byte) []byte {
	buf := make([]byte, 0, minFrameLen+len(params))
	buf = append(buf, headerByte, headerByte)
	buf = append(buf, byte(len(params)+2))
	buf = append(buf, cmd)
	buf = append(buf, params...)
	return buf
}

// DecodeFrame parses a wire frame. The preamble must sit at offset zero
// and the declared length must be fully present; anything else fails
// with a *FrameError. Trailing bytes (USB report padding) are ignored.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < minFrameLen {
		return Frame{}, &FrameError{Reason: "frame too short", Data: data}
	}
	if data[0] != headerByte || data[1] != headerByte {
		return Frame{}, &FrameError{Reason: "bad preamble", Data: data[:2]}
	}
	length := int(data[2])
	if length < 2 {
		return Frame{}, &FrameError{Reason: "length below minimum", Data: data[:minFrameLen]}
	}
	total := length + 2 // preamble is not counted by the length byte
	if len(data) < total {
		return Frame{}, &FrameError{Reason: "declared length exceeds data", Data: data}
	}

	f := Frame{Cmd: data[3]}
	if payload := length - 2; payload > 0 {
		f.Params = make([]byte, payload)
		copy(f.Params, data[minFrameLen:total])
	}
	return f, nil
}

// FrameLen reports how many bytes a complete frame occupies given its
// buffered header, or 0 if the header is not yet fully buffered.
func FrameLen(data []byte) int {
	if len(data) < 3 {
		return 0
	}
	return int(data[2]) + 2
}

// MovePacket encodes a batched move: every listed servo starts toward
// its target simultaneously and arrives after durationMS milliseconds.
// Entries must already be validated to be in range.
func MovePacket(entries []ServoPosition, durationMS int) []byte {
	params := make([]byte, 0, 3+3*len(entries))
	params = append(params, byte(len(entries)))
	params = binary.LittleEndian.AppendUint16(params, uint16(durationMS))
	for _, e := range entries {
		params = append(params, byte(e.ID))
		params = binary.LittleEndian.AppendUint16(params, uint16(e.Position))
	}
	return EncodeFrame(CmdServoMove, params)
}

// PositionQueryPacket encodes a position read for the given servo IDs.
func PositionQueryPacket(ids []int) []byte {
	params := make([]byte, 0, 1+len(ids))
	params = append(params, byte(len(ids)))
	for _, id := range ids {
		params = append(params, byte(id))
	}
	return EncodeFrame(CmdGetServoPosition, params)
}

// DecodePositionResponse parses a position query reply into (id,
// position) pairs. The payload is a count followed by one id + 16-bit
// little-endian position per servo.
func DecodePositionResponse(data []byte) ([]ServoPosition, error) {
	f, err := DecodeFrame(data)
	if err != nil {
		return nil, err
	}
	if f.Cmd != CmdGetServoPosition {
		return nil, &FrameError{Reason: "unexpected command in response", Data: data}
	}
	if len(f.Params) < 1 {
		return nil, &TruncatedPayloadError{Declared: 1, Available: 0}
	}
	count := int(f.Params[0])
	if got := len(f.Params) - 1; got < count*3 {
		return nil, &TruncatedPayloadError{Declared: count, Available: got / 3}
	}

	positions := make([]ServoPosition, count)
	for i := 0; i < count; i++ {
		entry := f.Params[1+i*3:]
		positions[i] = ServoPosition{
			ID:       int(entry[0]),
			Position: int(binary.LittleEndian.Uint16(entry[1:3])),
		}
	}
	return positions, nil
}

// ServoOffPacket encodes a power-off command for the given servo IDs.
func ServoOffPacket(ids []int) []byte {
	params := make([]byte, 0, 1+len(ids))
	params = append(params, byte(len(ids)))
	for _, id := range ids {
		params = append(params, byte(id))
	}
	return EncodeFrame(CmdServoStop, params)
}

// BatteryQueryPacket encodes a battery voltage read.
func BatteryQueryPacket() []byte {
	return EncodeFrame(CmdGetBatteryVoltage, nil)
}

// DecodeBatteryResponse parses a battery voltage reply and returns the
// reading in millivolts.
func DecodeBatteryResponse(data []byte) (int, error) {
	f, err := DecodeFrame(data)
	if err != nil {
		return 0, err
	}
	if f.Cmd != CmdGetBatteryVoltage {
		return 0, &FrameError{Reason: "unexpected command in response", Data: data}
	}
	if len(f.Params) < 2 {
		return 0, &TruncatedPayloadError{Declared: 2, Available: len(f.Params)}
	}
	return int(binary.LittleEndian.Uint16(f.Params)), nil
}

// ServoIDWritePacket encodes the broadcast ID assignment. The firmware
// applies it to every servo on the bus; there is no per-servo form.
func ServoIDWritePacket(newID int) []byte {
	return EncodeFrame(CmdServoIDWrite, []byte{byte(newID)})
}

// ServoIDReadPacket encodes the broadcast ID query. Only meaningful
// with a single servo on the bus.
func ServoIDReadPacket() []byte {
	return EncodeFrame(CmdServoIDRead, nil)
}

// DecodeServoIDResponse parses an ID query reply.
func DecodeServoIDResponse(data []byte) (int, error) {
	f, err := DecodeFrame(data)
	if err != nil {
		return 0, err
	}
	if f.Cmd != CmdServoIDRead {
		return 0, &FrameError{Reason: "unexpected command in response", Data: data}
	}
	if len(f.Params) < 1 {
		return 0, &TruncatedPayloadError{Declared: 1, Available: 0}
	}
	return int(f.Params[0]), nil
}
