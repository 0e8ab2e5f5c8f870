// Package geoip tags connection origins with a country code from a MaxMind
// database.
package geoip

import (
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/maxminddb-golang"

	"github.com/tinytelemetry/satis/internal/model"
)

type lookuper interface {
	Lookup(ip net.IP, result any) error
	Close() error
}

type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	RegisteredCountry struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"registered_country"`
}

// Resolver maps IP addresses to ISO country codes. A nil *Resolver resolves
// nothing, so callers need not special-case a missing database.
type Resolver struct {
	db lookuper
}

// Open loads a GeoLite2/GeoIP2 Country or City database.
func Open(path string) (*Resolver, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip: open %s: %w", path, err)
	}
	return &Resolver{db: db}, nil
}

// Close releases the database.
func (r *Resolver) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Country returns the ISO code for addr, or "" when it is unknown. addr may
// carry a port.
func (r *Resolver) Country(addr string) string {
	if r == nil || r.db == nil {
		return ""
	}
	ip := parseIP(addr)
	if ip == nil || ip.IsPrivate() || ip.IsLoopback() {
		return ""
	}

	var rec countryRecord
	if err := r.db.Lookup(ip, &rec); err != nil {
		return ""
	}
	if rec.Country.ISOCode != "" {
		return rec.Country.ISOCode
	}
	return rec.RegisteredCountry.ISOCode
}

// Enrich returns a copy of conns with Country filled in where known.
// Lookups are cached per address.
func (r *Resolver) Enrich(conns []model.ConnectionEvent) []model.ConnectionEvent {
	if r == nil || len(conns) == 0 {
		return conns
	}
	out := make([]model.ConnectionEvent, len(conns))
	cache := make(map[string]string)
	for i, c := range conns {
		code, ok := cache[c.Address]
		if !ok {
			code = r.Country(c.Address)
			cache[c.Address] = code
		}
		c.Country = code
		out[i] = c
	}
	return out
}

func parseIP(addr string) net.IP {
	addr = strings.TrimSpace(addr)
	if ip := net.ParseIP(strings.Trim(addr, "[]")); ip != nil {
		return ip
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return net.ParseIP(host)
	}
	return nil
}
