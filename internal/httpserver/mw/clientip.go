package mw

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// clientIP resolves the caller's address. Behind a trusted proxy it prefers
// CF-Connecting-IP, the left-most X-Forwarded-For entry, then X-Real-IP.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, v := range []string{
			r.Header.Get("CF-Connecting-IP"),
			firstForwardedFor(r.Header.Get("X-Forwarded-For")),
			r.Header.Get("X-Real-IP"),
		} {
			if ip := hostNoPort(strings.TrimSpace(v)); ip != "" {
				return ip
			}
		}
	}
	return hostNoPort(r.RemoteAddr)
}

func hostNoPort(s string) string {
	if h, _, err := net.SplitHostPort(s); err == nil {
		return h
	}
	return s
}

func firstForwardedFor(xff string) string {
	if i := strings.IndexByte(xff, ','); i >= 0 {
		xff = xff[:i]
	}
	return strings.TrimSpace(xff)
}

// prefixSet matches addresses against single IPs and CIDRs. Entries that
// parse as neither are ignored.
type prefixSet []netip.Prefix

func parsePrefixes(list []string) prefixSet {
	var set prefixSet
	for _, raw := range list {
		s := strings.TrimSpace(raw)
		if p, err := netip.ParsePrefix(s); err == nil {
			set = append(set, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(s); err == nil {
			set = append(set, netip.PrefixFrom(a, a.BitLen()))
		}
	}
	return set
}

func (s prefixSet) contains(ip string) bool {
	a, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, p := range s {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
