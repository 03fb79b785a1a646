package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dokzlo13/lightpanel/internal/config"
	"github.com/dokzlo13/lightpanel/internal/hue"
	"github.com/dokzlo13/lightpanel/internal/rooms"
)

// HueService wraps the bridge client and the room registry built for it.
type HueService struct {
	cfg *config.Config

	Client *hue.Client
	Rooms  *rooms.Registry
}

// NewHueService resolves the bridge address, connects the client and builds the room registry.
// An empty bridge address is discovered over mDNS; the first bridge found is used.
func NewHueService(ctx context.Context, cfg *config.Config) (*HueService, error) {
	address := cfg.Hue.Bridge
	if address == "" {
		bridges, err := hue.Discover(ctx, cfg.Hue.DiscoveryTimeout.Duration())
		if err != nil {
			return nil, fmt.Errorf("bridge discovery failed: %w", err)
		}
		if len(bridges) == 0 {
			return nil, fmt.Errorf("no Hue bridge found on the local network, set hue.bridge")
		}
		address = bridges[0].Address
		log.Info().
			Str("bridge", bridges[0].ID).
			Str("address", address).
			Int("found", len(bridges)).
			Msg("Discovered Hue bridge")
	}

	client := hue.NewClient(address, cfg.Hue.Token, cfg.Hue.Timeout.Duration(), cfg.Hue.RateLimitRPS)

	defs, err := resolveRooms(ctx, cfg, client)
	if err != nil {
		client.Close()
		return nil, err
	}

	registry, err := rooms.NewRegistry(defs)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("invalid rooms: %w", err)
	}

	log.Info().Str("bridge", client.Address()).Int("rooms", registry.Len()).Msg("Hue client ready")

	return &HueService{
		cfg:    cfg,
		Client: client,
		Rooms:  registry,
	}, nil
}

// resolveRooms returns the configured rooms followed by any bridge rooms not already configured
func resolveRooms(ctx context.Context, cfg *config.Config, bridge rooms.BridgeLister) ([]rooms.Room, error) {
	defs := lo.Map(cfg.Rooms, func(rc config.RoomConfig, _ int) rooms.Room {
		return rooms.Room{Name: rc.Name, Lights: rc.Lights, Color: rc.Color}
	})

	if !cfg.Hue.DiscoverRooms {
		return defs, nil
	}

	discovered, err := rooms.FromBridge(ctx, bridge)
	if err != nil {
		return nil, err
	}

	configured := lo.SliceToMap(defs, func(r rooms.Room) (string, struct{}) { return r.Name, struct{}{} })
	for _, r := range discovered {
		if _, ok := configured[r.Name]; ok {
			continue
		}
		if len(r.Name) > rooms.MaxNameBytes {
			log.Warn().Str("room", r.Name).Int("max_bytes", rooms.MaxNameBytes).Msg("Skipping bridge room with too long a name")
			continue
		}
		defs = append(defs, r)
	}
	return defs, nil
}

// Close releases the client's connections.
func (s *HueService) Close() {
	if s.Client != nil {
		s.Client.Close()
	}
}
