package loopback

import (
	"strings"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/pkg/nativenode"
)

// Defaults applied to fields the caller leaves unset.
const (
	DefaultName                      = "emergency-ops-mobile"
	DefaultAnnounceIntervalSeconds   = 1800
	DefaultAnnounceCapabilities      = "R3AKT,EMergencyMessages"
	DefaultHubRefreshIntervalSeconds = 3600
)

// nodeConfig is a NodeConfig with every default resolved.
type nodeConfig struct {
	Name                      string
	StorageDir                string
	TCPClients                []string
	Broadcast                 bool
	AnnounceIntervalSeconds   int
	AnnounceCapabilities      string
	HubMode                   nativenode.HubMode
	HubIdentityHash           string
	HubAPIBaseURL             string
	HubAPIKey                 string
	HubRefreshIntervalSeconds int
}

func parseNodeConfig(in nativenode.NodeConfig) nodeConfig {
	cfg := nodeConfig{
		Name:                      strings.TrimSpace(in.Name),
		StorageDir:                strings.TrimSpace(in.StorageDir),
		Broadcast:                 true,
		AnnounceIntervalSeconds:   DefaultAnnounceIntervalSeconds,
		AnnounceCapabilities:      DefaultAnnounceCapabilities,
		HubMode:                   nativenode.ParseHubMode(in.HubMode),
		HubIdentityHash:           strings.TrimSpace(in.HubIdentityHash),
		HubAPIBaseURL:             strings.TrimSpace(in.HubAPIBaseURL),
		HubAPIKey:                 strings.TrimSpace(in.HubAPIKey),
		HubRefreshIntervalSeconds: DefaultHubRefreshIntervalSeconds,
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	for _, c := range in.TCPClients {
		if c = strings.TrimSpace(c); c != "" {
			cfg.TCPClients = append(cfg.TCPClients, c)
		}
	}
	if in.Broadcast != nil {
		cfg.Broadcast = *in.Broadcast
	}
	if in.AnnounceIntervalSeconds != nil {
		cfg.AnnounceIntervalSeconds = max(*in.AnnounceIntervalSeconds, 1)
	}
	if in.AnnounceCapabilities != nil {
		if caps := strings.TrimSpace(*in.AnnounceCapabilities); caps != "" {
			cfg.AnnounceCapabilities = caps
		}
	}
	if in.HubRefreshIntervalSeconds != nil {
		cfg.HubRefreshIntervalSeconds = max(*in.HubRefreshIntervalSeconds, 1)
	}
	return cfg
}
