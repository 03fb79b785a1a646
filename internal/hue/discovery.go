package hue

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog/log"
)

const (
	// BridgeServiceType is the mDNS service type Hue bridges advertise
	BridgeServiceType = "_hue._tcp"

	bridgeServiceDomain = "local."
)

// Bridge is a Hue bridge found on the local network
type Bridge struct {
	ID      string
	Name    string
	Address string // host or host:port usable by NewClient
}

// Discover browses mDNS for Hue bridges until the timeout elapses or ctx is done
func Discover(ctx context.Context, timeout time.Duration) ([]Bridge, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu      sync.Mutex
		bridges []Bridge
		seen    = make(map[string]bool)
	)

	go func() {
		for entry := range entries {
			bridge, ok := bridgeFromEntry(entry)
			if !ok {
				continue
			}
			mu.Lock()
			if !seen[bridge.Address] {
				seen[bridge.Address] = true
				bridges = append(bridges, bridge)
				log.Debug().Str("id", bridge.ID).Str("address", bridge.Address).Msg("Found Hue bridge")
			}
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, BridgeServiceType, bridgeServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for Hue bridges: %w", err)
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	return append([]Bridge(nil), bridges...), nil
}

func bridgeFromEntry(entry *zeroconf.ServiceEntry) (Bridge, bool) {
	if entry == nil || len(entry.AddrIPv4) == 0 {
		return Bridge{}, false
	}

	bridge := Bridge{Name: entry.Instance}
	for _, txt := range entry.Text {
		if id, ok := strings.CutPrefix(txt, "bridgeid="); ok {
			bridge.ID = strings.ToLower(id)
		}
	}

	host := entry.AddrIPv4[0].String()
	if entry.Port != 0 && entry.Port != 80 && entry.Port != 443 {
		host = net.JoinHostPort(host, fmt.Sprint(entry.Port))
	}
	bridge.Address = host
	return bridge, true
}
