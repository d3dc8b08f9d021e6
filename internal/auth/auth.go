package auth

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
)

const SecretHeader = "X-Admin-Secret"

type Guard struct {
	secret   []byte
	cidrs    []*net.IPNet
	attempts *throttle
}

func New(secret string, allowedCIDRs []string) (*Guard, error) {
	g := &Guard{secret: []byte(strings.TrimSpace(secret)), attempts: newThrottle()}
	if len(g.secret) == 0 {
		return nil, errors.New("admin secret is required")
	}
	for _, s := range allowedCIDRs {
		_, n, err := net.ParseCIDR(strings.TrimSpace(s))
		if err != nil {
			log.WithField("cidr", s).Warn("auth: ignoring invalid CIDR")
			continue
		}
		g.cidrs = append(g.cidrs, n)
	}
	return g, nil
}

// AdminOnly admits requests from the allowed networks that carry the admin
// secret in the X-Admin-Secret header, a Bearer token or ?secret=.
// Repeated failures from one address are blocked for a while.
func (g *Guard) AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(g.cidrs) > 0 && !g.allowIP(r.RemoteAddr) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		ip := remoteIP(r.RemoteAddr)
		if g.attempts.blocked(ip) {
			http.Error(w, ErrBlocked.Error(), http.StatusTooManyRequests)
			return
		}
		if !g.validSecret(requestSecret(r)) {
			g.attempts.fail(ip)
			log.WithField("remote", ip).Warn("auth: rejected admin request")
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		g.attempts.clear(ip)
		next.ServeHTTP(w, r)
	})
}

func requestSecret(r *http.Request) string {
	if v := r.Header.Get(SecretHeader); v != "" {
		return v
	}
	if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return v
	}
	return r.URL.Query().Get("secret")
}

func (g *Guard) validSecret(v string) bool {
	vb := []byte(strings.TrimSpace(v))
	if len(vb) == 0 || len(g.secret) == 0 {
		return false
	}
	if len(vb) != len(g.secret) {
		return false
	}
	return subtle.ConstantTimeCompare(vb, g.secret) == 1
}

func (g *Guard) allowIP(remoteAddr string) bool {
	ip := net.ParseIP(remoteIP(remoteAddr))
	if ip == nil {
		return false
	}
	for _, cidr := range g.cidrs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

func remoteIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return strings.TrimSpace(remoteAddr)
	}
	return host
}
