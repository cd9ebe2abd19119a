package x402

import (
	"fmt"
	"iter"
	"maps"
	"net/http"
	"slices"
	"strings"
)

const (
	// DefaultMimeType is applied to routes that do not set one.
	DefaultMimeType = "application/json"

	// DefaultMaxTimeoutSeconds is applied to routes that do not set one.
	DefaultMaxTimeoutSeconds = 600
)

// RouteConfig is the price list entry for one protected route.
type RouteConfig struct {
	Network           string
	Asset             string
	MaxAmountRequired string
	Description       string
	MimeType          string
	MaxTimeoutSeconds int
	OutputSchema      map[string]any
	Extra             map[string]any
}

func (c RouteConfig) withDefaults() RouteConfig {
	if c.MimeType == "" {
		c.MimeType = DefaultMimeType
	}
	if c.MaxTimeoutSeconds == 0 {
		c.MaxTimeoutSeconds = DefaultMaxTimeoutSeconds
	}
	return c
}

// Requirement builds the challenge for this route. A fresh value is returned
// on every call; requirements are never cached across requests.
func (c RouteConfig) Requirement(resource, payTo string) PaymentRequirement {
	c = c.withDefaults()
	return PaymentRequirement{
		Scheme:            SchemeExact,
		Network:           c.Network,
		MaxAmountRequired: c.MaxAmountRequired,
		Resource:          resource,
		Description:       c.Description,
		MimeType:          c.MimeType,
		PayTo:             payTo,
		MaxTimeoutSeconds: c.MaxTimeoutSeconds,
		Asset:             c.Asset,
		OutputSchema:      c.OutputSchema,
		Extra:             c.Extra,
	}
}

// Routes is the read-only registry of protected routes, keyed by "METHOD /path".
// It is built once at startup and safe for concurrent use.
type Routes struct {
	entries map[string]RouteConfig
}

// NewRoutes validates the route keys, applies RouteConfig defaults and copies
// the map so later changes to routes have no effect on the registry.
func NewRoutes(routes map[string]RouteConfig) (*Routes, error) {
	entries := make(map[string]RouteConfig, len(routes))
	for key, cfg := range routes {
		method, path, ok := strings.Cut(strings.TrimSpace(key), " ")
		path = strings.TrimSpace(path)
		if !ok || method == "" || path == "" || strings.Contains(path, " ") {
			return nil, fmt.Errorf("%w: %q (expected \"METHOD /path\")", ErrInvalidRoute, key)
		}
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		entries[routeKey(method, path)] = cfg.withDefaults()
	}
	return &Routes{entries: entries}, nil
}

// Len returns the number of registered routes.
func (r *Routes) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// All yields every registered route in key order.
func (r *Routes) All() iter.Seq2[string, RouteConfig] {
	return func(yield func(string, RouteConfig) bool) {
		if r == nil {
			return
		}
		for _, key := range slices.Sorted(maps.Keys(r.entries)) {
			if !yield(key, r.entries[key]) {
				return
			}
		}
	}
}

// Lookup returns the RouteConfig protecting (method, path). Rules, in order:
// the exact normalized path, the normalized path with a trailing slash, and
// finally "POST /" which matches every POST request.
func (r *Routes) Lookup(method, path string) (RouteConfig, bool) {
	if r == nil {
		return RouteConfig{}, false
	}
	method = strings.ToUpper(method)
	path = NormalizePath(path)

	if cfg, ok := r.entries[routeKey(method, path)]; ok {
		return cfg, true
	}
	if path != "/" {
		if cfg, ok := r.entries[routeKey(method, path+"/")]; ok {
			return cfg, true
		}
	}
	if method == http.MethodPost {
		if cfg, ok := r.entries[routeKey(http.MethodPost, "/")]; ok {
			return cfg, true
		}
	}
	return RouteConfig{}, false
}

// NormalizePath strips a trailing slash (except for the root) and ensures a
// leading slash.
func NormalizePath(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}

// ResourceURL reconstructs the absolute URL of r without its query string.
// The scheme honours X-Forwarded-Proto, the host defaults to "localhost".
func ResourceURL(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	host := r.Host
	if host == "" {
		host = "localhost"
	}
	return scheme + "://" + host + r.URL.Path
}

func routeKey(method, path string) string {
	return strings.ToUpper(method) + " " + path
}
