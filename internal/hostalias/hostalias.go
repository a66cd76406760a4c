package hostalias

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"startvnc/internal/models"
)

// shortnameRegex matches lab shortnames: one alias letter followed by the
// final octet, e.g. l184 or s57.
var shortnameRegex = regexp.MustCompile(`^([a-z])(\d{1,3})$`)

// hostnameRegex accepts DNS-style names for targets that are neither
// shortnames nor IP addresses.
var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9.-]*[a-zA-Z0-9])?$`)

// Resolver maps operator-supplied target names onto SSH endpoints.
type Resolver struct {
	prefixes map[string]string // alias letter -> first three IPv4 octets
	user     string
	port     int
}

// NewResolver initializes a Resolver with the configured alias prefixes and
// SSH defaults.
func NewResolver(prefixes map[string]string, user string, port int) *Resolver {
	return &Resolver{
		prefixes: prefixes,
		user:     user,
		port:     port,
	}
}

// Resolve turns a target argument into an Endpoint. Accepted forms, in order:
// a configured shortname (alias letter + final octet), a literal IP address,
// a hostname.
func (r *Resolver) Resolve(target string) (models.Endpoint, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return models.Endpoint{}, fmt.Errorf("empty target")
	}

	if m := shortnameRegex.FindStringSubmatch(target); m != nil {
		if prefix, ok := r.prefixes[m[1]]; ok {
			host := prefix + "." + m[2]
			if net.ParseIP(host) == nil {
				return models.Endpoint{}, fmt.Errorf("alias %q expands to invalid address %q", target, host)
			}
			return r.endpoint(host), nil
		}
		// No prefix configured for this letter, fall through to the
		// hostname forms.
	}

	if net.ParseIP(target) != nil {
		return r.endpoint(target), nil
	}

	if hostnameRegex.MatchString(target) {
		return r.endpoint(target), nil
	}

	return models.Endpoint{}, fmt.Errorf("cannot resolve target %q: not a known alias, IP address or hostname", target)
}

func (r *Resolver) endpoint(host string) models.Endpoint {
	return models.Endpoint{
		User: r.user,
		Host: host,
		Port: r.port,
	}
}
