package observability

import (
	"crypto/subtle"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/samber/oops"
)

// Guard restricts /metrics to clients in an IP allowlist or presenting basic
// auth credentials. An empty guard allows nobody.
type Guard struct {
	allow []netip.Prefix
	user  string
	pass  string
}

// NewGuard parses allowlist entries, each an address or a CIDR prefix.
// Basic auth is enabled only when both user and pass are set.
func NewGuard(allowlist []string, user, pass string) (*Guard, error) {
	g := &Guard{}
	if user != "" && pass != "" {
		g.user, g.pass = user, pass
	}
	for _, entry := range allowlist {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		p, err := parsePrefix(entry)
		if err != nil {
			return nil, oops.In("observability").With("entry", entry).Wrapf(err, "invalid metrics allowlist entry")
		}
		g.allow = append(g.allow, p)
	}
	return g, nil
}

func parsePrefix(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		p, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, err
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Decision is the outcome of a guard check, as an HTTP status.
func (g *Guard) Decision(r *http.Request) int {
	if g.ipAllowed(r.RemoteAddr) {
		return http.StatusOK
	}
	if user, pass, ok := r.BasicAuth(); ok {
		if g.user != "" && equal(user, g.user) && equal(pass, g.pass) {
			return http.StatusOK
		}
		return http.StatusUnauthorized
	}
	if g.user != "" {
		return http.StatusUnauthorized
	}
	return http.StatusForbidden
}

// Wrap applies the guard to next.
func (g *Guard) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch status := g.Decision(r); status {
		case http.StatusOK:
			next.ServeHTTP(w, r)
		case http.StatusUnauthorized:
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
			http.Error(w, "metrics authentication required", status)
		default:
			http.Error(w, "ip address not allowed", status)
		}
	})
}

func (g *Guard) ipAllowed(remote string) bool {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range g.allow {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
