package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	logx "github.com/tonagent/server/pkg/logger"
)

// Catalog fetches and caches the remote tool list. The cache is shared
// mutable state across concurrent requests; check-and-refresh happens under
// the mutex and stale reads inside the TTL are acceptable.
type Catalog struct {
	cfg    Config
	client *http.Client

	mu        sync.Mutex
	tools     map[string]ToolDescriptor
	fetchedAt time.Time
}

func NewCatalog(cfg Config) *Catalog {
	return &Catalog{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.CatalogTimeout},
	}
}

// Tools returns the catalog keyed by tool name. A fetch failure yields an
// empty map, never an error; the next successful fetch replaces the cache.
func (c *Catalog) Tools(ctx context.Context) map[string]ToolDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tools != nil && time.Since(c.fetchedAt) < c.cfg.CatalogTTL {
		return c.tools
	}

	tools, err := c.fetch(ctx)
	if err != nil {
		logx.Error().Err(err).Msg("could not fetch MCP tool catalog")
		return map[string]ToolDescriptor{}
	}

	c.tools = tools
	c.fetchedAt = time.Now()
	logx.Info().Int("count", len(tools)).Msg("loaded tools from MCP server")
	return c.tools
}

func (c *Catalog) fetch(ctx context.Context) (map[string]ToolDescriptor, error) {
	url := strings.TrimSuffix(c.cfg.ServerURL, "/") + "/tools"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create catalog request: %w", err)
	}
	if c.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned HTTP %d", resp.StatusCode)
	}

	var body struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	tools := make(map[string]ToolDescriptor, len(body.Tools))
	for _, t := range body.Tools {
		tools[t.Name] = t
	}
	return tools, nil
}
