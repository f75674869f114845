// Package network feeds decoded skeleton frames into a mocap.Snapshot from
// UDP datagrams, a serial line, or a recorded packet capture.
package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/mocap.bridge/internal/mocap"
)

// DefaultUDPPort is the port frame datagrams are expected on.
const DefaultUDPPort = 7004

// ErrPCAPDisabled is returned by ReplayPCAP when the binary was built
// without the pcap tag.
var ErrPCAPDisabled = errors.New("PCAP support not enabled: rebuild with -tags=pcap to replay captures")

// maxDatagram covers a full JSON frame with MaxFrameSegments segments.
const maxDatagram = 64 * 1024

// FrameSink receives decoded frames. *mocap.Snapshot implements it.
type FrameSink interface {
	Queue(f mocap.Frame)
}

// UDPListener receives frame datagrams and hands each decoded frame to a
// sink.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	sockets     UDPSocketFactory
	stats       PacketStatsInterface
	sink        FrameSink

	mu   sync.Mutex
	conn UDPSocket
}

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Stats       PacketStatsInterface
	Sink        FrameSink
	// Sockets defaults to RealUDPSocketFactory.
	Sockets UDPSocketFactory
}

// NewUDPListener creates a new UDP listener with the provided configuration.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	stats := config.Stats
	if stats == nil {
		stats = noopStats{}
	}
	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}
	sockets := config.Sockets
	if sockets == nil {
		sockets = RealUDPSocketFactory{}
	}
	address := config.Address
	if address == "" {
		address = fmt.Sprintf(":%d", DefaultUDPPort)
	}
	return &UDPListener{
		address:     address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		sockets:     sockets,
		stats:       stats,
		sink:        config.Sink,
	}
}

// Start listens until ctx is cancelled. It returns ctx.Err() on shutdown.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := l.sockets.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			log.Printf("[udp] warning: failed to set receive buffer to %d: %v", l.rcvBuf, err)
		}
	}
	log.Printf("[udp] frame listener started on %s", conn.LocalAddr())

	go l.startStatsLogging(ctx)

	buffer := make([]byte, maxDatagram)
	for {
		select {
		case <-ctx.Done():
			log.Print("[udp] listener stopping due to context cancellation")
			return ctx.Err()
		default:
		}

		// A short deadline lets the loop notice cancellation.
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, from, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Printf("[udp] read error: %v", err)
			continue
		}
		if err := l.handlePacket(buffer[:n]); err != nil {
			log.Printf("[udp] dropping datagram from %v: %v", from, err)
		}
	}
}

func (l *UDPListener) startStatsLogging(ctx context.Context) {
	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

// handlePacket decodes one datagram. Decode failures are counted and
// returned; they never stop the listener.
func (l *UDPListener) handlePacket(packet []byte) error {
	l.stats.AddPacket(len(packet))
	frame, err := mocap.DecodeFrame(packet)
	if err != nil {
		l.stats.AddDropped()
		return err
	}
	l.stats.AddFrame()
	if l.sink != nil {
		l.sink.Queue(frame)
	}
	return nil
}

// Close closes the socket, unblocking Start.
func (l *UDPListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
