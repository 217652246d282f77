// Package clientip resolves the effective client address of a request.
package clientip

import (
	"net"
	"net/http"
	"strings"
)

// HeaderForwardedFor is the trusted forwarder header.
const HeaderForwardedFor = "X-Forwarded-For"

// ClientIP returns the first trimmed comma-separated token of xff when it is
// non-empty, otherwise the host part of remoteAddr, otherwise "".
// The token is not validated as an IP; storage coerces it.
func ClientIP(xff, remoteAddr string) string {
	if xff != "" {
		first := xff
		if i := strings.IndexByte(xff, ','); i >= 0 {
			first = xff[:i]
		}
		if s := strings.TrimSpace(first); s != "" {
			return s
		}
	}
	remoteAddr = strings.TrimSpace(remoteAddr)
	if remoteAddr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// FromRequest applies ClientIP to r. X-Forwarded-For is only consulted when
// trustForwarded is set, i.e. the deployment sits behind a controlled proxy.
func FromRequest(r *http.Request, trustForwarded bool) string {
	xff := ""
	if trustForwarded {
		xff = strings.Join(r.Header.Values(HeaderForwardedFor), ",")
	}
	return ClientIP(xff, r.RemoteAddr)
}
