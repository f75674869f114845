//go:build !pcap
// +build !pcap

package network

import "context"

// ReplayPCAP is a stub implementation when PCAP support is disabled.
func ReplayPCAP(ctx context.Context, pcapFile string, udpPort int, sink FrameSink, stats PacketStatsInterface, realtime bool) error {
	return ErrPCAPDisabled
}
