package middleware

import (
	"net"
	"net/http"

	"github.com/elabsync/elabsync/internal/logging"
)

// LoopbackOnly rejects any request that does not originate from the
// local machine. The form server holds a live API token, so even when
// it is accidentally bound to a routable interface, nothing but the
// local user's browser may talk to it. Forwarding headers are ignored
// on purpose: only the connection source counts.
func LoopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := remoteIP(r.RemoteAddr)
		if ip == nil || !ip.IsLoopback() {
			logging.FromContext(r.Context()).Warn("rejected non-local request",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			http.Error(w, "this server only accepts local connections", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// remoteIP parses the IP out of a host:port string or plain IP.
func remoteIP(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(addr)
}
