package scraper

import (
	"fmt"
	"net"
	"net/url"
)

// privateCIDRs are pre-computed at package init to avoid re-parsing on every call.
var privateCIDRs []*net.IPNet

func init() {
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"100.64.0.0/10",  // CGNAT
		"169.254.0.0/16", // link-local
		"fc00::/7",       // IPv6 ULA
	} {
		_, parsed, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("bad CIDR %q: %v", cidr, err))
		}
		privateCIDRs = append(privateCIDRs, parsed)
	}
}

// ValidateSeedURL checks that a seed URL is safe to hand to the browser:
// http(s) scheme, a real domain, and no private or reserved destination.
// Scrape requests come from tenants, so this runs before any crawl starts.
func ValidateSeedURL(rawURL string) error {
	normalized, _, err := NormalizeSeedURL(rawURL)
	if err != nil {
		return err
	}
	parsed, err := url.Parse(normalized)
	if err != nil {
		return ErrInvalidURL
	}

	host := parsed.Hostname()
	ips, err := net.LookupHost(host)
	if err != nil {
		return fmt.Errorf("dns lookup failed for %s: %w", host, err)
	}
	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr)
		if ip == nil {
			continue
		}
		if isPrivateIP(ip) {
			return fmt.Errorf("url resolves to private/reserved address %s", ipStr)
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	for _, cidr := range privateCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}
