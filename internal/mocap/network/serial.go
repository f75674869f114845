package network

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/mocap.bridge/internal/mocap"
)

// DefaultBaudRate is used when a serial source does not configure one.
const DefaultBaudRate = 115200

// SerialPort is the minimal serial port surface the reader needs.
type SerialPort interface {
	io.Reader
	io.Closer
}

// SerialOpener opens a serial port. Tests substitute it to avoid hardware.
type SerialOpener func(path string, baud int) (SerialPort, error)

// OpenSerialPort opens path as 8N1 at the given baud rate.
func OpenSerialPort(path string, baud int) (SerialPort, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return port, nil
}

// SerialReaderConfig configures a SerialReader.
type SerialReaderConfig struct {
	Path  string
	Baud  int
	Sink  FrameSink
	Stats PacketStatsInterface
	// Open defaults to OpenSerialPort.
	Open SerialOpener
	// RetryDelay is the pause before reopening a failed port. Defaults to
	// one second.
	RetryDelay time.Duration
}

// SerialReader decodes newline-delimited JSON frames from a serial line.
type SerialReader struct {
	cfg SerialReaderConfig
}

// NewSerialReader creates a reader with defaults applied.
func NewSerialReader(cfg SerialReaderConfig) *SerialReader {
	if cfg.Baud <= 0 {
		cfg.Baud = DefaultBaudRate
	}
	if cfg.Stats == nil {
		cfg.Stats = noopStats{}
	}
	if cfg.Open == nil {
		cfg.Open = OpenSerialPort
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &SerialReader{cfg: cfg}
}

// Start reads until ctx is cancelled, reopening the port after read
// failures. It returns ctx.Err() on shutdown.
func (r *SerialReader) Start(ctx context.Context) error {
	for {
		err := r.readOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[serial] %s: %v; retrying in %v", r.cfg.Path, err, r.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.cfg.RetryDelay):
		}
	}
}

func (r *SerialReader) readOnce(ctx context.Context) error {
	port, err := r.cfg.Open(r.cfg.Path, r.cfg.Baud)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer func() {
		if stop() {
			port.Close()
		}
	}()
	log.Printf("[serial] reading frames from %s at %d baud", r.cfg.Path, r.cfg.Baud)

	scanner := bufio.NewScanner(port)
	scanner.Buffer(make([]byte, 4096), maxDatagram)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		r.cfg.Stats.AddPacket(len(line))
		frame, err := mocap.DecodeFrame(line)
		if err != nil {
			r.cfg.Stats.AddDropped()
			continue
		}
		r.cfg.Stats.AddFrame()
		if r.cfg.Sink != nil {
			r.cfg.Sink.Queue(frame)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errors.New("serial stream ended")
}
