package geoip

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// ErrUnavailable is returned when the resolver is not initialized.
var ErrUnavailable = errors.New("geoip resolver unavailable")

// CountryResolver resolves ISO country codes from IP addresses.
type CountryResolver interface {
	CountryCode(ip string) (string, error)
}

// Resolver provides country lookups backed by a MaxMind GeoIP2 database.
type Resolver struct {
	reader *geoip2.Reader
}

// NewResolver opens the GeoIP database at the given path. When the path is
// empty a nil resolver and no error are returned; callers treat that as "no
// country hints".
func NewResolver(path string) (*Resolver, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open database: %w", err)
	}
	return &Resolver{reader: reader}, nil
}

// CountryCode returns the ISO country code for the provided IP.
func (r *Resolver) CountryCode(ip string) (string, error) {
	if r == nil || r.reader == nil {
		return "", ErrUnavailable
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", fmt.Errorf("geoip: invalid ip %q", ip)
	}
	record, err := r.reader.Country(parsed)
	if err != nil {
		return "", fmt.Errorf("geoip: lookup country: %w", err)
	}
	if record == nil || record.Country.IsoCode == "" {
		return "", nil
	}
	return record.Country.IsoCode, nil
}

// Close closes the underlying database reader.
func (r *Resolver) Close() error {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.reader.Close()
}

// Static resolves from a fixed IP to country table. Used in development and
// tests where no MaxMind database is available.
type Static map[string]string

func (s Static) CountryCode(ip string) (string, error) {
	if code, ok := s[ip]; ok {
		return strings.ToUpper(code), nil
	}
	return "", nil
}

// LookupFunc adapts a resolver to the locale middleware. Private, loopback
// and unparsable addresses are never looked up. A nil resolver yields nil.
func LookupFunc(r CountryResolver) func(ip string) (string, error) {
	if r == nil {
		return nil
	}
	if res, ok := r.(*Resolver); ok && res == nil {
		return nil
	}
	return func(ip string) (string, error) {
		parsed := net.ParseIP(strings.TrimSpace(ip))
		if parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() {
			return "", nil
		}
		return r.CountryCode(parsed.String())
	}
}

var _ io.Closer = (*Resolver)(nil)
