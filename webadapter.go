package aidra

import (
	"context"
	"net"
	"net/url"
	"strings"
)

// SearchResult is one hit from WebAdapter.Search.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// FetchResult is the extracted content of a single URL fetch.
type FetchResult struct {
	URL     string
	Title   string
	Content string
}

// WebAdapter is the seam between the agent loop's web_search/web_fetch
// tools and a concrete backend (tools/web).
type WebAdapter interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
	Fetch(ctx context.Context, rawURL string) (FetchResult, error)
}

// blockedCIDRs enumerates the private, loopback, and link-local ranges
// web_fetch refuses. IsPublicURL checks a literal IP host against them
// directly, and every address net.LookupIP returns for a hostname.
var blockedCIDRs = mustParseCIDRs(
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"0.0.0.0/8",
	"169.254.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic("aidra: invalid CIDR literal: " + c)
		}
		out = append(out, n)
	}
	return out
}

// IsPublicURL reports whether rawURL is an http(s) URL whose host resolves
// to a public, non-loopback, non-private, non-link-local address, guarding
// web_fetch against SSRF into internal infrastructure (including the cloud
// metadata address 169.254.169.254, covered by the 169.254.0.0/16 block).
func IsPublicURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := u.Hostname()
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return false
	}

	ips := []net.IP{net.ParseIP(host)}
	if ips[0] == nil {
		resolved, err := net.LookupIP(host)
		if err != nil || len(resolved) == 0 {
			return false
		}
		ips = resolved
	}

	for _, ip := range ips {
		if ip == nil {
			return false
		}
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return false
		}
		for _, block := range blockedCIDRs {
			if block.Contains(ip) {
				return false
			}
		}
	}
	return true
}
