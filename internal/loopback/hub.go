package loopback

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/FreeTAKTeam/reticulum-mobile-emergency-management/pkg/nativenode"
)

const maxHubResponseBytes = 1 << 20

var hexRunRE = regexp.MustCompile(`(?i)[0-9a-f]+`)

// extractDestinations returns every standalone 32 character hex run in text,
// lowercased, in order of first appearance.
func extractDestinations(text string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, m := range hexRunRE.FindAllString(text, -1) {
		if len(m) != nativenode.DestinationHexLen {
			continue
		}
		m = strings.ToLower(m)
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// fetchHubDirectory lists the destinations known to the configured hub.
func (n *Node) fetchHubDirectory(ctx context.Context, cfg nodeConfig) ([]string, error) {
	switch cfg.HubMode {
	case nativenode.HubRchHTTP:
		return n.fetchHubDirectoryHTTP(ctx, cfg)
	case nativenode.HubRchLxmf:
		if cfg.HubIdentityHash == "" {
			return nil, newNodeError(nativenode.CodeInvalidConfig, "hubIdentityHash is required for RchLxmf hub mode")
		}
		if _, err := nativenode.ParseDestinationHex(cfg.HubIdentityHash); err != nil {
			return nil, newNodeError(nativenode.CodeInvalidConfig, err.Error())
		}
		return nil, newNodeError(nativenode.CodeNetworkError, "no LXMF transport to reach hub "+cfg.HubIdentityHash)
	default:
		return nil, newNodeError(nativenode.CodeInvalidConfig, "hub directory is disabled")
	}
}

func (n *Node) fetchHubDirectoryHTTP(ctx context.Context, cfg nodeConfig) ([]string, error) {
	if cfg.HubAPIBaseURL == "" {
		return nil, newNodeError(nativenode.CodeInvalidConfig, "hubApiBaseUrl is required for RchHttp hub mode")
	}
	url := strings.TrimRight(cfg.HubAPIBaseURL, "/") + "/Client"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, newNodeError(nativenode.CodeInvalidConfig, fmt.Sprintf("invalid hub url: %v", err))
	}
	if cfg.HubAPIKey != "" {
		req.Header.Set("X-API-Key", cfg.HubAPIKey)
		req.Header.Set("Authorization", "Bearer "+cfg.HubAPIKey)
	}

	resp, err := n.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, newNodeError(nativenode.CodeNetworkError, fmt.Sprintf("hub request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, newNodeError(nativenode.CodeNetworkError, fmt.Sprintf("hub responded %d", resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHubResponseBytes))
	if err != nil {
		return nil, newNodeError(nativenode.CodeNetworkError, fmt.Sprintf("failed to read hub response: %v", err))
	}
	return extractDestinations(string(body)), nil
}
