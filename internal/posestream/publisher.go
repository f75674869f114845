// Package posestream streams published tracker poses to remote viewers over
// gRPC. Poses enter through the device.Host interface, are queued to a
// broadcast goroutine, and fan out to per-client channels so a slow viewer
// never stalls the update loop.
package posestream

import (
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/mocap.bridge/internal/posestream/pb"
	"github.com/banshee-data/mocap.bridge/internal/publish"
	"github.com/banshee-data/mocap.bridge/internal/tracker"
)

var _ pb.PoseStreamServer = (*Publisher)(nil)

// Config holds configuration for the pose stream server.
type Config struct {
	// ListenAddr is the address to listen on (e.g. "localhost:50061").
	ListenAddr string
	// MaxClients limits concurrent subscriptions.
	MaxClients int
	// QueueSize is the depth of the shared and per-client queues.
	QueueSize int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr: "localhost:50061",
		MaxClients: 8,
		QueueSize:  256,
	}
}

// Publisher runs the gRPC server and broadcasts poses to subscribers.
type Publisher struct {
	pb.UnimplementedPoseStreamServer

	config   Config
	server   *grpc.Server
	listener net.Listener

	poseCh    chan publish.PoseMessage
	clients   map[string]*clientStream
	clientsMu sync.RWMutex

	poseCount   atomic.Uint64
	dropped     atomic.Uint64
	clientCount atomic.Int32

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type clientStream struct {
	id      string
	serials map[string]bool
	poseCh  chan publish.PoseMessage
}

// Stats is a snapshot of publisher counters.
type Stats struct {
	Poses   uint64 `json:"poses"`
	Dropped uint64 `json:"dropped"`
	Clients int32  `json:"clients"`
	Running bool   `json:"running"`
}

// NewPublisher creates a stopped publisher.
func NewPublisher(cfg Config) *Publisher {
	def := DefaultConfig()
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = def.MaxClients
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	return &Publisher{
		config:  cfg,
		poseCh:  make(chan publish.PoseMessage, cfg.QueueSize),
		clients: make(map[string]*clientStream),
		stopCh:  make(chan struct{}),
	}
}

// Start listens on the configured address and serves in the background.
func (p *Publisher) Start() error {
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", p.config.ListenAddr, err)
	}
	return p.Serve(lis)
}

// Serve serves on an existing listener in the background.
func (p *Publisher) Serve(lis net.Listener) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("publisher already running")
	}
	p.listener = lis
	p.server = grpc.NewServer()
	pb.RegisterPoseStreamServer(p.server, p)

	p.wg.Add(2)
	go p.broadcastLoop()
	go func() {
		defer p.wg.Done()
		log.Printf("[posestream] gRPC server listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			log.Printf("[posestream] gRPC server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the listening address, or nil before Serve.
func (p *Publisher) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// Stop ends every subscription and shuts the server down.
func (p *Publisher) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stopCh)
	p.server.Stop()
	p.wg.Wait()
	log.Printf("[posestream] gRPC server stopped")
}

// PublishPose implements device.Host. It never blocks.
func (p *Publisher) PublishPose(index uint32, serial string, pose tracker.TrackerPose) {
	if !p.running.Load() {
		return
	}
	select {
	case p.poseCh <- publish.NewPoseMessage(index, serial, pose):
		p.poseCount.Add(1)
	default:
		p.dropped.Add(1)
	}
}

func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case m := <-p.poseCh:
			p.clientsMu.RLock()
			for _, c := range p.clients {
				if c.serials != nil && !c.serials[m.Serial] {
					continue
				}
				select {
				case c.poseCh <- m:
				default:
					p.dropped.Add(1)
				}
			}
			p.clientsMu.RUnlock()
		}
	}
}

func (p *Publisher) addClient(serials map[string]bool) (*clientStream, error) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if len(p.clients) >= p.config.MaxClients {
		return nil, status.Errorf(codes.ResourceExhausted, "at most %d subscribers", p.config.MaxClients)
	}
	c := &clientStream{
		id:      uuid.NewString(),
		serials: serials,
		poseCh:  make(chan publish.PoseMessage, p.config.QueueSize),
	}
	p.clients[c.id] = c
	p.clientCount.Add(1)
	log.Printf("[posestream] client connected: %s (total: %d)", c.id, p.clientCount.Load())
	return c, nil
}

func (p *Publisher) removeClient(id string) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if _, ok := p.clients[id]; ok {
		delete(p.clients, id)
		p.clientCount.Add(-1)
		log.Printf("[posestream] client disconnected: %s (remaining: %d)", id, p.clientCount.Load())
	}
}

// Subscribe implements pb.PoseStreamServer.
func (p *Publisher) Subscribe(req *structpb.Struct, stream pb.PoseStream_SubscribeServer) error {
	serials, err := requestSerials(req)
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	c, err := p.addClient(serials)
	if err != nil {
		return err
	}
	defer p.removeClient(c.id)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.stopCh:
			return status.Error(codes.Unavailable, "server stopping")
		case m := <-c.poseCh:
			msg, err := encodePose(m)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// Stats returns current publisher counters.
func (p *Publisher) Stats() Stats {
	return Stats{
		Poses:   p.poseCount.Load(),
		Dropped: p.dropped.Load(),
		Clients: p.clientCount.Load(),
		Running: p.running.Load(),
	}
}
