package auth

import (
	"fmt"
	"net"
	"strings"
)

// ProxyTrust decides whether a request address is allowed to assert the
// password header on behalf of a user. With an empty allowlist no proxy is
// ever trusted.
type ProxyTrust struct {
	nets []*net.IPNet
}

// NewProxyTrust parses a list of CIDRs. Bare addresses are accepted and
// treated as single-host networks.
func NewProxyTrust(cidrs []string) (*ProxyTrust, error) {
	trust := &ProxyTrust{}
	for _, cidr := range cidrs {
		value := strings.TrimSpace(cidr)
		if value == "" {
			continue
		}
		if !strings.Contains(value, "/") {
			ip := net.ParseIP(value)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy address %q", value)
			}
			if ip.To4() != nil {
				value += "/32"
			} else {
				value += "/128"
			}
		}
		_, network, err := net.ParseCIDR(value)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy CIDR %q: %w", cidr, err)
		}
		trust.nets = append(trust.nets, network)
	}
	return trust, nil
}

// Trusted reports whether remoteAddr (host or host:port) falls inside one of
// the allowed networks.
func (t *ProxyTrust) Trusted(remoteAddr string) bool {
	if len(t.nets) == 0 {
		return false
	}

	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}

	for _, network := range t.nets {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
