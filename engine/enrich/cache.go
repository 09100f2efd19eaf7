// Package enrich generates and caches model-derived metadata: document
// summaries, themes and entities at the manifest level, and summaries,
// intents, sentiment and claims at the chunk level. Every payload is cached
// on disk under a version tag so reruns only pay for what changed.
package enrich

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// cacheEnvelope wraps a cached payload with the generation version that
// produced it.
type cacheEnvelope struct {
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// Cache is a per-item JSON cache gated on a generation version. Entries
// written by an older generation are treated as absent.
type Cache struct {
	dir     string
	version int
}

// NewCache creates a cache rooted at dir for the given generation version.
func NewCache(dir string, version int) *Cache {
	return &Cache{dir: dir, version: version}
}

// pathFor sanitizes the item id into a file name. Slashes and colons appear
// in chunk ids and would otherwise split the path.
func (c *Cache) pathFor(id string) string {
	sanitized := strings.NewReplacer("/", "_", ":", "_").Replace(id)
	return filepath.Join(c.dir, sanitized+".json")
}

// Load reads the cached payload for id into out. Returns false when the
// entry is missing, unreadable, or tagged with a different version.
func (c *Cache) Load(id string, out any) bool {
	data, err := os.ReadFile(c.pathFor(id))
	if err != nil {
		return false
	}
	var env cacheEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return false
	}
	if env.Version != c.version {
		return false
	}
	return json.Unmarshal(env.Data, out) == nil
}

// Store writes the payload for id under the current version.
func (c *Cache) Store(id string, payload any) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("enrich: create cache dir %s: %w", c.dir, err)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("enrich: encode cache payload for %s: %w", id, err)
	}
	env, err := json.Marshal(cacheEnvelope{Version: c.version, Data: raw})
	if err != nil {
		return fmt.Errorf("enrich: encode cache envelope for %s: %w", id, err)
	}
	path := c.pathFor(id)
	if err := os.WriteFile(path, env, 0o644); err != nil {
		return fmt.Errorf("enrich: write cache %s: %w", path, err)
	}
	return nil
}
