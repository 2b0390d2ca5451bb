// Package roboclaw implements the packet serial protocol of the RoboClaw
// motor controller: big-endian address-prefixed frames terminated by a
// CRC-16/CCITT checksum, one acknowledgement byte per write, fixed-length
// payloads per read command.
//
// The link is half duplex. Every exchange (request plus response) runs under
// a single mutex so concurrent callers, such as a telemetry poller next to
// the control tick, can never interleave frames.
package roboclaw

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Terrier-Ride-Engineering-Club/Ride-Control-Computer/internal/logger"
)

// Protocol failure modes. These are per-call errors: the controller object
// stays usable after any of them.
var (
	ErrCRC            = errors.New("crc mismatch")
	ErrIncompleteRead = errors.New("incomplete read")
	ErrNoAck          = errors.New("no acknowledgement byte received")
)

const (
	// DefaultAddress is the controller's packet serial address.
	DefaultAddress = 0x80
	// DefaultBaudRate matches the controller's configured serial speed.
	DefaultBaudRate = 38400
	// DefaultTimeout bounds every byte-level wait on the link.
	DefaultTimeout = 100 * time.Millisecond

	ackByte = 0xFF

	recoverBackoff     = 200 * time.Millisecond
	recoverMaxAttempts = 25
)

// EncoderReading is the decoded result of a read-encoder exchange.
type EncoderReading struct {
	Count     int32
	Underflow bool
	Overflow  bool
	Backward  bool
}

// Controller drives a single RoboClaw over a Transport. All exported
// methods are safe for concurrent use.
type Controller struct {
	log         *logger.Logger
	transport   Transport
	address     byte
	timeout     time.Duration
	autoRecover bool
	mu          sync.Mutex
}

// Config carries the knobs for New.
type Config struct {
	Address     byte
	Timeout     time.Duration
	AutoRecover bool
}

// New wraps an open transport. The controller takes ownership of it.
func New(transport Transport, cfg Config, log *logger.Logger) *Controller {
	if cfg.Address == 0 {
		cfg.Address = DefaultAddress
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Controller{
		log:         log.WithTag("RoboClaw"),
		transport:   transport,
		address:     cfg.Address,
		timeout:     cfg.Timeout,
		autoRecover: cfg.AutoRecover,
	}
}

// Close releases the underlying transport.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport.Close()
}

// readBytes polls the transport byte by byte until want bytes arrived or the
// deadline passed. Callers hold c.mu.
func (c *Controller) readBytes(want int) ([]byte, error) {
	buf := make([]byte, 0, want)
	one := make([]byte, 1)
	deadline := time.Now().Add(c.timeout)
	for len(buf) < want {
		n, err := c.transport.Read(one)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			buf = append(buf, one[0])
			continue
		}
		if time.Now().After(deadline) {
			break
		}
	}
	if len(buf) < want {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrIncompleteRead, want, len(buf))
	}
	return buf, nil
}

// read performs one read exchange: [address][cmd] out, [payload][crc16] back.
// payloadLen is fixed per command.
func (c *Controller) read(cmd byte, payloadLen int) ([]byte, error) {
	header := []byte{c.address, cmd}

	c.mu.Lock()
	payload, err := func() ([]byte, error) {
		if err := c.transport.ResetInput(); err != nil {
			return nil, err
		}
		if _, err := c.transport.Write(header); err != nil {
			return nil, err
		}
		resp, err := c.readBytes(payloadLen + 2)
		if err != nil {
			return nil, err
		}
		got := binary.BigEndian.Uint16(resp[payloadLen:])
		if want := Checksum(append(header, resp[:payloadLen]...)); got != want {
			return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRC, want, got)
		}
		return resp[:payloadLen], nil
	}()
	c.mu.Unlock()

	if err != nil {
		return nil, c.handleExchangeError(cmd, err)
	}
	return payload, nil
}

// write performs one write exchange: [address][cmd][payload][crc16] out, one
// acknowledgement byte back.
func (c *Controller) write(cmd byte, payload []byte) error {
	frame := make([]byte, 0, 2+len(payload)+2)
	frame = append(frame, c.address, cmd)
	frame = append(frame, payload...)
	frame = binary.BigEndian.AppendUint16(frame, Checksum(frame))

	c.mu.Lock()
	err := func() error {
		if _, err := c.transport.Write(frame); err != nil {
			return err
		}
		ack, err := c.readBytes(1)
		if err != nil {
			if errors.Is(err, ErrIncompleteRead) {
				return ErrNoAck
			}
			return err
		}
		if ack[0] != ackByte {
			return fmt.Errorf("%w: got 0x%02X instead of acknowledgement", ErrCRC, ack[0])
		}
		return nil
	}()
	c.mu.Unlock()

	return c.handleExchangeError(cmd, err)
}

// handleExchangeError runs the auto-recover reconnection loop for
// transport-level failures. Protocol failures (CRC, short read, missing ack)
// are never retried here; the caller maps them to a fault.
func (c *Controller) handleExchangeError(cmd byte, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCRC) || errors.Is(err, ErrIncompleteRead) || errors.Is(err, ErrNoAck) {
		return fmt.Errorf("command %d: %w", cmd, err)
	}
	if c.autoRecover {
		c.recover()
	}
	return fmt.Errorf("command %d: serial: %w", cmd, err)
}

func (c *Controller) recover() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for attempt := 1; attempt <= recoverMaxAttempts; attempt++ {
		if err := c.transport.Reopen(); err == nil {
			c.log.Infof("serial link recovered after %d attempt(s)", attempt)
			return
		}
		c.log.Warnf("failed to recover serial link, retrying")
		time.Sleep(recoverBackoff)
	}
	c.log.Errorf("giving up on serial recovery after %d attempts", recoverMaxAttempts)
}

// SetSpeed drives M1 at a signed speed in QPPS with no ramping.
func (c *Controller) SetSpeed(speed int32) error {
	var payload [4]byte
	binary.BigEndian.PutUint32(payload[:], uint32(speed))
	return c.write(cmdM1Speed, payload[:])
}

// SetSpeedWithAcceleration drives M1 at a signed speed in QPPS, ramping at
// the unsigned acceleration in QPPS per second.
func (c *Controller) SetSpeedWithAcceleration(speed int32, accel uint32) error {
	var payload [8]byte
	binary.BigEndian.PutUint32(payload[0:4], accel)
	binary.BigEndian.PutUint32(payload[4:8], uint32(speed))
	return c.write(cmdM1SpeedAccel, payload[:])
}

// DriveToPositionRaw moves M1 to an absolute position in encoder counts and
// holds it, with explicit accel/cruise/decel profile. buffer selects the
// controller's command buffering slot; 0 executes immediately.
func (c *Controller) DriveToPositionRaw(accel uint32, speed int32, decel uint32, position int32, buffer byte) error {
	var payload [17]byte
	binary.BigEndian.PutUint32(payload[0:4], accel)
	binary.BigEndian.PutUint32(payload[4:8], uint32(speed))
	binary.BigEndian.PutUint32(payload[8:12], decel)
	binary.BigEndian.PutUint32(payload[12:16], uint32(position))
	payload[16] = buffer
	return c.write(cmdM1SpeedAccelDecelPos, payload[:])
}

// DriveToPosition moves M1 to a position expressed as a percentage of its
// configured range, at a speed expressed as a percentage of its configured
// max speed. Both conversions round to the nearest device unit.
func (c *Controller) DriveToPosition(accel uint32, speedPct float64, decel uint32, positionPct float64, buffer byte) error {
	minPos, maxPos, err := c.ReadRange()
	if err != nil {
		return err
	}
	maxSpeed, err := c.ReadMaxSpeed()
	if err != nil {
		return err
	}
	return c.DriveToPositionRaw(
		accel,
		speedFromPercent(speedPct, maxSpeed),
		decel,
		positionFromPercent(positionPct, minPos, maxPos),
		buffer,
	)
}

func speedFromPercent(pct float64, maxSpeed uint32) int32 {
	return int32(math.Round(pct / 100.0 * float64(maxSpeed)))
}

func positionFromPercent(pct float64, minPos, maxPos int32) int32 {
	return int32(math.Round(pct/100.0*float64(maxPos-minPos) + float64(minPos)))
}

// ReadEncoder returns the M1 quadrature count and its decoded status bits.
func (c *Controller) ReadEncoder() (EncoderReading, error) {
	payload, err := c.read(cmdGetM1Encoder, 5)
	if err != nil {
		return EncoderReading{}, err
	}
	status := payload[4]
	return EncoderReading{
		Count:     int32(binary.BigEndian.Uint32(payload[0:4])),
		Underflow: status&encoderStatusUnderflow != 0,
		Backward:  status&encoderStatusBackward != 0,
		Overflow:  status&encoderStatusOverflow != 0,
	}, nil
}

// ResetEncoders zeroes both quadrature counters.
func (c *Controller) ResetEncoders() error {
	var zero [4]byte
	if err := c.write(cmdSetM1EncCount, zero[:]); err != nil {
		return err
	}
	return c.write(cmdSetM2EncCount, zero[:])
}

// ReadRawSpeed returns the current M1 speed in signed QPPS. The controller
// reports magnitude plus a direction byte.
func (c *Controller) ReadRawSpeed() (float64, error) {
	payload, err := c.read(cmdGetM1Speed, 5)
	if err != nil {
		return 0, err
	}
	speed := float64(binary.BigEndian.Uint32(payload[0:4]))
	if payload[4] != 0 {
		speed = -speed
	}
	return speed, nil
}

// ReadRawStatus returns the controller's error/warning bitmask.
func (c *Controller) ReadRawStatus() (uint32, error) {
	payload, err := c.read(cmdGetError, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(payload), nil
}

// ReadStatus returns the decoded controller status string; "Normal" when no
// error or warning bit is set.
func (c *Controller) ReadStatus() (string, error) {
	status, err := c.ReadRawStatus()
	if err != nil {
		return "", err
	}
	return DecodeStatus(status), nil
}

// ReadTemperature reads board temperature sensor 1 or 2 in degrees Celsius.
func (c *Controller) ReadTemperature(sensor int) (float64, error) {
	cmd := byte(cmdGetTemp)
	if sensor == 2 {
		cmd = cmdGetTemp2
	}
	payload, err := c.read(cmd, 2)
	if err != nil {
		return 0, err
	}
	return float64(binary.BigEndian.Uint16(payload)) / tempScale, nil
}

// ReadVoltages returns the main and logic battery voltages.
func (c *Controller) ReadVoltages() (main, logic float64, err error) {
	mainRaw, err := c.read(cmdGetMainBattery, 2)
	if err != nil {
		return 0, 0, err
	}
	logicRaw, err := c.read(cmdGetLogicBattery, 2)
	if err != nil {
		return 0, 0, err
	}
	return float64(binary.BigEndian.Uint16(mainRaw)) / voltageScale,
		float64(binary.BigEndian.Uint16(logicRaw)) / voltageScale, nil
}

// ReadCurrents returns the motor currents in amps.
func (c *Controller) ReadCurrents() (m1, m2 float64, err error) {
	payload, err := c.read(cmdGetCurrents, 4)
	if err != nil {
		return 0, 0, err
	}
	return float64(int16(binary.BigEndian.Uint16(payload[0:2]))) / currentScale,
		float64(int16(binary.BigEndian.Uint16(payload[2:4]))) / currentScale, nil
}

// ReadPWMs returns the motor PWM duty cycles as a fraction of full scale.
func (c *Controller) ReadPWMs() (m1, m2 float64, err error) {
	payload, err := c.read(cmdGetPWMs, 4)
	if err != nil {
		return 0, 0, err
	}
	return float64(int16(binary.BigEndian.Uint16(payload[0:2]))) / pwmScale,
		float64(int16(binary.BigEndian.Uint16(payload[2:4]))) / pwmScale, nil
}

// ReadMaxSpeed returns the QPPS setting from the M1 velocity PID block,
// which is the speed that percentage-based commands scale against.
func (c *Controller) ReadMaxSpeed() (uint32, error) {
	payload, err := c.read(cmdReadM1VelocityPID, 16)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(payload[12:16]), nil
}

// ReadRange returns the MinPos/MaxPos fields of the M1 position PID block,
// the bounds that percentage-based position commands scale against.
func (c *Controller) ReadRange() (minPos, maxPos int32, err error) {
	payload, err := c.read(cmdReadM1PositionPID, 28)
	if err != nil {
		return 0, 0, err
	}
	return int32(binary.BigEndian.Uint32(payload[20:24])),
		int32(binary.BigEndian.Uint32(payload[24:28])), nil
}

// ReadVersion returns the firmware version string. Unlike the fixed-length
// reads, the response is terminated by a line feed and a null byte, followed
// by the usual CRC.
func (c *Controller) ReadVersion() (string, error) {
	header := []byte{c.address, cmdGetVersion}

	c.mu.Lock()
	version, err := func() (string, error) {
		if err := c.transport.ResetInput(); err != nil {
			return "", err
		}
		if _, err := c.transport.Write(header); err != nil {
			return "", err
		}

		var resp []byte
		one := make([]byte, 1)
		deadline := time.Now().Add(c.timeout)
		for {
			n, err := c.transport.Read(one)
			if err != nil {
				return "", err
			}
			if n > 0 {
				resp = append(resp, one[0])
				if len(resp) >= 2 && resp[len(resp)-2] == '\n' && resp[len(resp)-1] == 0 {
					break
				}
				continue
			}
			if time.Now().After(deadline) {
				return "", fmt.Errorf("%w: version string not terminated", ErrIncompleteRead)
			}
		}

		crcBytes, err := c.readBytes(2)
		if err != nil {
			return "", err
		}
		got := binary.BigEndian.Uint16(crcBytes)
		if want := Checksum(append(header, resp...)); got != want {
			return "", fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRC, want, got)
		}
		return string(resp[:len(resp)-2]), nil
	}()
	c.mu.Unlock()

	if err != nil {
		return "", c.handleExchangeError(cmdGetVersion, err)
	}
	return version, nil
}
