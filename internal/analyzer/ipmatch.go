package analyzer

import (
	"net"
	"strings"
)

// ipInSpecs reports whether ip matches any of specs, each an exact IP or a
// CIDR block. Mirrors internal/registry's matchAny; duplicated rather than
// imported to keep the analyzer free of a dependency on the manager's
// registry package.
func ipInSpecs(ip string, specs []string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		if !strings.Contains(spec, "/") {
			if specIP := net.ParseIP(spec); specIP != nil && specIP.Equal(parsed) {
				return true
			}
			continue
		}
		if _, ipnet, err := net.ParseCIDR(spec); err == nil && ipnet.Contains(parsed) {
			return true
		}
	}
	return false
}
