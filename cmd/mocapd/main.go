package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/mocap.bridge/internal/config"
	"github.com/banshee-data/mocap.bridge/internal/db"
	"github.com/banshee-data/mocap.bridge/internal/device"
	"github.com/banshee-data/mocap.bridge/internal/mocap"
	"github.com/banshee-data/mocap.bridge/internal/mocap/network"
	"github.com/banshee-data/mocap.bridge/internal/monitor"
	"github.com/banshee-data/mocap.bridge/internal/posestream"
	"github.com/banshee-data/mocap.bridge/internal/publish"
	"github.com/banshee-data/mocap.bridge/internal/timeutil"
	"github.com/banshee-data/mocap.bridge/internal/version"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to the bridge JSON config")
	dbPath      = flag.String("db", "mocap_bridge.db", "SQLite database for recorded sessions")
	listen      = flag.String("listen", ":8090", "Monitor HTTP listen address")
	grpcListen  = flag.String("grpc", posestream.DefaultConfig().ListenAddr, "Pose stream gRPC listen address (empty disables)")
	sourceKind  = flag.String("source", "", "Override the configured source kind (udp, serial, mock, pcap)")
	notes       = flag.String("notes", "", "Notes stored with the recorded session")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// sourceRunner feeds frames into the snapshot until ctx is cancelled.
type sourceRunner func(ctx context.Context) error

// newSource builds the ingestion loop for src.
func newSource(src config.SourceConfig, snap *mocap.Snapshot, stats network.PacketStatsInterface, clock timeutil.Clock) (sourceRunner, error) {
	switch src.Kind {
	case config.SourceUDP:
		l := network.NewUDPListener(network.UDPListenerConfig{
			Address: src.Address,
			RcvBuf:  src.RcvBuf,
			Stats:   stats,
			Sink:    snap,
		})
		return l.Start, nil
	case config.SourceSerial:
		if src.SerialPath == "" {
			return nil, errors.New("serial source requires serial_path")
		}
		r := network.NewSerialReader(network.SerialReaderConfig{
			Path:  src.SerialPath,
			Baud:  src.Baud,
			Sink:  snap,
			Stats: stats,
		})
		return r.Start, nil
	case config.SourceMock:
		m := mocap.NewMockSource(clock)
		return func(ctx context.Context) error { return m.Run(ctx, snap, src.MockRateHz) }, nil
	case config.SourcePCAP:
		if src.PCAPFile == "" {
			return nil, errors.New("pcap source requires pcap_file")
		}
		port := src.PCAPPort
		if port == 0 {
			port = network.DefaultUDPPort
		}
		return func(ctx context.Context) error {
			return network.ReplayPCAP(ctx, src.PCAPFile, port, snap, stats, src.Realtime)
		}, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", src.Kind)
	}
}

// loadConfig reads the config file and applies flag overrides.
// sessionConfig renders the effective configuration stored with a recorded
// session.
func sessionConfig(cfg *config.BridgeConfig) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(raw), nil
}

func loadConfig(path, kind string) (*config.BridgeConfig, error) {
	cfg, err := config.LoadBridgeConfig(path)
	if err != nil {
		return nil, err
	}
	if kind != "" {
		src := cfg.GetSource()
		src.Kind = kind
		cfg.Source = &src
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return cfg, nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("mocapd %s\n", version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg, err := loadConfig(*configPath, *sourceKind)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	clock := timeutil.RealClock{}
	snap := mocap.NewSnapshot(clock)
	packetStats := network.NewPacketStats(cfg.GetSource().Kind)
	runSource, err := newSource(cfg.GetSource(), snap, packetStats, clock)
	if err != nil {
		log.Fatalf("failed to create source: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	var wg sync.WaitGroup

	traces := monitor.NewTraces(0)
	hub := monitor.NewPoseHub()
	fanout := publish.NewFanout(traces, hub)
	outputs := map[string]func() any{
		"source": func() any { return packetStats.Latest() },
	}

	if *grpcListen != "" {
		pcfg := posestream.DefaultConfig()
		pcfg.ListenAddr = *grpcListen
		stream := posestream.NewPublisher(pcfg)
		if err := stream.Start(); err != nil {
			log.Fatalf("failed to start pose stream: %v", err)
		}
		defer stream.Stop()
		fanout.Add(stream)
		outputs["grpc"] = func() any { return stream.Stats() }
	}

	if mcfg := cfg.GetMQTT(); mcfg != nil {
		client, err := publish.DialMQTT(*mcfg)
		if err != nil {
			log.Fatalf("failed to connect to MQTT broker: %v", err)
		}
		mq := publish.NewMQTTPublisher(client, *mcfg, publish.DefaultMQTTQueue)
		fanout.Add(mq)
		outputs["mqtt"] = func() any { return mq.Stats() }
		wg.Add(1)
		go func() {
			defer wg.Done()
			mq.Run(ctx)
			log.Print("mqtt publisher terminated")
		}()
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	var onDrop device.DropFunc
	if rec := cfg.GetRecord(); rec.Enabled {
		raw, err := sessionConfig(cfg)
		if err != nil {
			log.Fatalf("failed to encode session config: %v", err)
		}
		sess, err := database.StartSession(clock.Now(), cfg.GetSource().Kind, raw, *notes)
		if err != nil {
			log.Fatalf("failed to start session: %v", err)
		}
		log.Printf("recording session %s (1 pose in %d)", sess.ID, rec.SampleEvery)
		recorder := db.NewRecorder(database, db.RecorderConfig{SessionID: sess.ID, SampleEvery: rec.SampleEvery})
		fanout.Add(recorder)
		onDrop = recorder.RecordDrop
		outputs["recorder"] = func() any { return recorder.Stats() }
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := recorder.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("recorder error: %v", err)
			}
			if err := database.EndSession(sess.ID, time.Now()); err != nil {
				log.Printf("failed to end session: %v", err)
			}
			log.Print("recorder terminated")
		}()
	}

	driver := device.NewDriver(device.DriverConfig{
		Host:     fanout,
		Source:   snap,
		Settings: device.SettingsFromConfig(cfg),
		Clock:    clock,
		OnDrop:   onDrop,
	})
	if err := driver.AddDevicesFromConfig(cfg); err != nil {
		log.Fatalf("failed to add devices: %v", err)
	}
	driver.ActivateAll()

	server, err := monitor.NewServer(monitor.Config{
		Address:    *listen,
		Controller: driver,
		Traces:     traces,
		Hub:        hub,
		DB:         database,
	})
	if err != nil {
		log.Fatalf("failed to create monitor server: %v", err)
	}
	for name, fn := range outputs {
		server.AddStats(name, fn)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runSource(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("source error: %v", err)
		}
		log.Print("source routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := driver.Run(ctx, cfg.GetFrameRateHz()); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("driver error: %v", err)
			stop()
		}
		log.Print("driver terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx); err != nil {
			log.Printf("monitor server error: %v", err)
			stop()
		}
		log.Print("monitor server terminated")
	}()

	log.Printf("mocapd %s: %d devices at %.0f Hz", version.Version, len(driver.Devices()), cfg.GetFrameRateHz())
	<-ctx.Done()
	wg.Wait()
	log.Print("graceful shutdown complete")
}
