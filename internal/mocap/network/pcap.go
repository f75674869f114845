//go:build pcap
// +build pcap

package network

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/banshee-data/mocap.bridge/internal/mocap"
)

// ReplayPCAP feeds frame datagrams recorded in a capture file to sink. With
// realtime set, packets are paced by their capture timestamps; otherwise
// they are replayed as fast as they decode. Replayed frames are stamped as
// captured on receipt so sample ages reflect replay time.
func ReplayPCAP(ctx context.Context, pcapFile string, udpPort int, sink FrameSink, stats PacketStatsInterface, realtime bool) error {
	if stats == nil {
		stats = noopStats{}
	}
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		return fmt.Errorf("failed to set BPF filter '%s': %w", filterStr, err)
	}
	log.Printf("[pcap] replaying %s with filter %q", pcapFile, filterStr)

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	var (
		count     int
		firstCap  time.Time
		wallStart = time.Now()
	)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[pcap] replay stopped after %d packets", count)
			return ctx.Err()
		case packet := <-source.Packets():
			if packet == nil {
				log.Printf("[pcap] replay complete: %d packets in %v", count, time.Since(wallStart))
				return nil
			}
			count++

			udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}

			if realtime {
				ts := packet.Metadata().Timestamp
				if firstCap.IsZero() {
					firstCap = ts
				}
				if wait := ts.Sub(firstCap) - time.Since(wallStart); wait > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(wait):
					}
				}
			}

			stats.AddPacket(len(udp.Payload))
			frame, err := mocap.DecodeFrame(udp.Payload)
			if err != nil {
				stats.AddDropped()
				continue
			}
			stats.AddFrame()
			frame.Captured = time.Time{}
			sink.Queue(frame)
		}
	}
}
