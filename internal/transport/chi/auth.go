package chi

import (
	"net"
	"net/http"
	"strings"
)

// ownerID identifies the caller for job ownership and admission control: the
// bearer token when one is presented, otherwise the client address. Jobs
// submitted without credentials stay private to their source host.
func ownerID(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const bearerPrefix = "Bearer "
	if strings.HasPrefix(auth, bearerPrefix) {
		if token := strings.TrimSpace(auth[len(bearerPrefix):]); token != "" {
			return token
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
