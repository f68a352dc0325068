package http

import (
	"net"
	"net/http"
	"strings"
)

// IPConfig holds the parsed trusted-proxy allowlist used for client IP extraction
type IPConfig struct {
	trusted []*net.IPNet
}

// NewIPConfig parses CIDR ranges or bare IPs. Invalid entries are skipped;
// an empty result trusts no proxy.
func NewIPConfig(trustedProxies []string) *IPConfig {
	cfg := &IPConfig{}
	for _, entry := range trustedProxies {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				continue
			}
			bits := 128
			if ip.To4() != nil {
				bits = 32
			}
			cfg.trusted = append(cfg.trusted, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		if _, ipNet, err := net.ParseCIDR(entry); err == nil {
			cfg.trusted = append(cfg.trusted, ipNet)
		}
	}
	return cfg
}

// ExtractClientIP returns the origin address of the request.
// Forwarding headers are honored only when the direct peer is a trusted proxy,
// and X-Forwarded-For is walked right to left so a client cannot prepend a spoofed hop.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remote := getRemoteAddr(r)
	if !config.isTrusted(remote) {
		return remote
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if net.ParseIP(hop) == nil {
				// Unparseable hop: stop rather than trust anything left of it
				break
			}
			if !config.isTrusted(hop) {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}

	return remote
}

// getRemoteAddr extracts the IP address from RemoteAddr (removing port if present)
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

func (c *IPConfig) isTrusted(ip string) bool {
	if c == nil || len(c.trusted) == 0 {
		return false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range c.trusted {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}
