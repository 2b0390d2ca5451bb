package roboclaw

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Transport is the byte-level link to the motor controller. Read follows
// serial semantics: a zero-length read with a nil error means no byte
// arrived within the port's read timeout. The driver owns the transport
// exclusively; nothing else may touch it while an exchange is in flight.
type Transport interface {
	io.ReadWriteCloser

	// ResetInput drops any unread bytes so a new exchange starts clean.
	ResetInput() error

	// Reopen closes and reopens the underlying link. Used by the
	// auto-recover retry loop after a transport-level disconnection.
	Reopen() error
}

// SerialTransport is the production transport over a serial port.
type SerialTransport struct {
	port     serial.Port
	portName string
	mode     *serial.Mode
	timeout  time.Duration
}

// OpenSerial opens the named serial port with the RoboClaw's framing
// (8 data bits, no parity, one stop bit) and a bounded read timeout.
func OpenSerial(portName string, baudRate int, readTimeout time.Duration) (*SerialTransport, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", portName, err)
	}

	return &SerialTransport{
		port:     port,
		portName: portName,
		mode:     mode,
		timeout:  readTimeout,
	}, nil
}

func (s *SerialTransport) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialTransport) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialTransport) Close() error {
	return s.port.Close()
}

func (s *SerialTransport) ResetInput() error {
	return s.port.ResetInputBuffer()
}

func (s *SerialTransport) Reopen() error {
	s.port.Close()
	port, err := serial.Open(s.portName, s.mode)
	if err != nil {
		return fmt.Errorf("failed to reopen serial port %s: %w", s.portName, err)
	}
	if err := port.SetReadTimeout(s.timeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout on %s: %w", s.portName, err)
	}
	s.port = port
	return nil
}
