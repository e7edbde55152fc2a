package security

import (
	"net/http"
	"strconv"
	"strings"
)

// Directive is one Content-Security-Policy directive.
type Directive struct {
	Name    string
	Sources []string
}

// HeadersConfig selects the hardening headers attached to every response.
type HeadersConfig struct {
	CSP []Directive

	HSTSMaxAge            int // seconds; 0 disables HSTS
	HSTSIncludeSubDomains bool
	HSTSPreload           bool

	FrameOptions   string
	ReferrerPolicy string
}

// DefaultHeadersConfig returns the policy the gateway ships with: a
// self-only CSP (inline styles and data/https images allowed) and one year
// of HSTS with subdomains and preload.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		CSP: []Directive{
			{Name: "default-src", Sources: []string{"'self'"}},
			{Name: "style-src", Sources: []string{"'self'", "'unsafe-inline'"}},
			{Name: "script-src", Sources: []string{"'self'"}},
			{Name: "img-src", Sources: []string{"'self'", "data:", "https:"}},
		},
		HSTSMaxAge:            31536000,
		HSTSIncludeSubDomains: true,
		HSTSPreload:           true,
		FrameOptions:          "SAMEORIGIN",
		ReferrerPolicy:        "no-referrer",
	}
}

// Headers is a precomputed set of response headers. It is immutable after
// construction and safe for concurrent use.
type Headers struct {
	set [][2]string
}

// NewHeaders renders cfg into header values once.
func NewHeaders(cfg HeadersConfig) *Headers {
	h := &Headers{}
	if csp := renderCSP(cfg.CSP); csp != "" {
		h.add("Content-Security-Policy", csp)
	}
	h.add("Cross-Origin-Opener-Policy", "same-origin")
	h.add("Cross-Origin-Resource-Policy", "same-origin")
	h.add("Origin-Agent-Cluster", "?1")
	if cfg.ReferrerPolicy != "" {
		h.add("Referrer-Policy", cfg.ReferrerPolicy)
	}
	if cfg.HSTSMaxAge > 0 {
		v := "max-age=" + strconv.Itoa(cfg.HSTSMaxAge)
		if cfg.HSTSIncludeSubDomains {
			v += "; includeSubDomains"
		}
		if cfg.HSTSPreload {
			v += "; preload"
		}
		h.add("Strict-Transport-Security", v)
	}
	h.add("X-Content-Type-Options", "nosniff")
	h.add("X-DNS-Prefetch-Control", "off")
	h.add("X-Download-Options", "noopen")
	if cfg.FrameOptions != "" {
		h.add("X-Frame-Options", cfg.FrameOptions)
	}
	h.add("X-Permitted-Cross-Domain-Policies", "none")
	h.add("X-XSS-Protection", "0")
	return h
}

func (h *Headers) add(k, v string) { h.set = append(h.set, [2]string{k, v}) }

// Apply writes the hardening headers into dst and removes headers that
// disclose the server implementation.
func (h *Headers) Apply(dst http.Header) {
	for _, kv := range h.set {
		dst.Set(kv[0], kv[1])
	}
	dst.Del("X-Powered-By")
	dst.Del("Server")
}

func renderCSP(ds []Directive) string {
	parts := make([]string, 0, len(ds))
	for _, d := range ds {
		if d.Name == "" {
			continue
		}
		if len(d.Sources) == 0 {
			parts = append(parts, d.Name)
			continue
		}
		parts = append(parts, d.Name+" "+strings.Join(d.Sources, " "))
	}
	return strings.Join(parts, "; ")
}
