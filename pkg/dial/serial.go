package dial

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// SerialConfig configures the serial dial driver.
type SerialConfig struct {
	Device   string
	BaudRate int
	// QueueSize bounds pending events; the oldest are dropped beyond it.
	QueueSize int
}

// DefaultSerialConfig returns the settings of the stock dial firmware.
func DefaultSerialConfig(device string) SerialConfig {
	return SerialConfig{
		Device:    device,
		BaudRate:  115200,
		QueueSize: 256,
	}
}

// Serial drives a dial speaking a line protocol over a serial port.
//
// Device to host, one token per line:
//
//	R+ / R-   one detent clockwise / counter-clockwise
//	B1 / B0   button pressed / released
//	C1 / C0   connected / disconnected
//
// Host to device:
//
//	S<n>      set n subdivisions (S0 = free rotation)
type Serial struct {
	*Queue

	port   io.ReadWriteCloser
	logger *zap.Logger

	writeMu sync.Mutex
	done    chan struct{}
	closeMu sync.Once
}

// OpenSerial opens the port and starts the reader goroutine.
func OpenSerial(cfg SerialConfig, logger *zap.Logger) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open dial on %s: %w", cfg.Device, err)
	}

	return newSerial(port, cfg.QueueSize, logger), nil
}

func newSerial(port io.ReadWriteCloser, queueSize int, logger *zap.Logger) *Serial {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Serial{
		Queue:  NewQueue(queueSize),
		port:   port,
		logger: logger,
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *Serial) readLoop() {
	defer close(s.done)

	scanner := bufio.NewScanner(s.port)
	for scanner.Scan() {
		line := scanner.Text()
		ev, ok := ParseLine(line)
		if !ok {
			if strings.TrimSpace(line) != "" {
				s.logger.Debug("ignoring dial line", zap.String("line", line))
			}
			continue
		}
		s.Push(ev)
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("dial reader stopped", zap.Error(err))
	}
	s.Push(Connection(false))
}

// ParseLine decodes one device line.
func ParseLine(line string) (Event, bool) {
	switch strings.TrimSpace(line) {
	case "R+":
		return Rotate(Clockwise), true
	case "R-":
		return Rotate(CounterClockwise), true
	case "B1":
		return Button(true), true
	case "B0":
		return Button(false), true
	case "C1":
		return Connection(true), true
	case "C0":
		return Connection(false), true
	default:
		return Event{}, false
	}
}

// SetSubdivisions sends S<n> to the device.
func (s *Serial) SetSubdivisions(n uint16) error {
	if err := s.write(fmt.Sprintf("S%d\n", n)); err != nil {
		return err
	}
	return s.Queue.SetSubdivisions(n)
}

// DisableSubdivisions sends S0 to the device.
func (s *Serial) DisableSubdivisions() error {
	if err := s.write("S0\n"); err != nil {
		return err
	}
	return s.Queue.DisableSubdivisions()
}

func (s *Serial) write(cmd string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := io.WriteString(s.port, cmd); err != nil {
		return fmt.Errorf("dial write %q: %w", strings.TrimSpace(cmd), err)
	}
	return nil
}

// Close closes the port and waits for the reader to exit.
func (s *Serial) Close() error {
	var err error
	s.closeMu.Do(func() {
		err = s.port.Close()
		<-s.done
		s.Queue.Close()
	})
	return err
}

var _ Device = (*Serial)(nil)
