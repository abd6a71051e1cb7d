package main

import (
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// IPEnrichment contains geolocation data for an IP
type IPEnrichment struct {
	Country      string `json:"country,omitempty"`
	CountryCode  string `json:"country_code,omitempty"`
	City         string `json:"city,omitempty"`
	ASN          uint   `json:"asn,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// geoLookup answers the two MaxMind queries used for enrichment
type geoLookup interface {
	City(ip net.IP) (*geoip2.City, error)
	ASN(ip net.IP) (*geoip2.ASN, error)
}

// Enricher annotates grouped IP rows with GeoIP2 data
type Enricher struct {
	city   geoLookup
	asn    geoLookup
	logger *zap.Logger
	closer []func() error
}

// openEnricher opens the city and ASN databases. Empty paths fall back to
// GEOIP_DB_PATH and GEOIP_ASN_DB_PATH; with neither database configured it
// returns nil and enrichment is skipped.
func openEnricher(cityPath, asnPath string, logger *zap.Logger) (*Enricher, error) {
	if cityPath == "" {
		cityPath = os.Getenv("GEOIP_DB_PATH")
	}
	if asnPath == "" {
		asnPath = os.Getenv("GEOIP_ASN_DB_PATH")
	}
	if cityPath == "" && asnPath == "" {
		return nil, nil
	}

	e := &Enricher{logger: logger}
	if cityPath != "" {
		db, err := geoip2.Open(cityPath)
		if err != nil {
			return nil, configurationError(eris.Wrapf(err, "failed to open GeoIP database %s", cityPath))
		}
		e.city = db
		e.closer = append(e.closer, db.Close)
	}
	if asnPath != "" {
		db, err := geoip2.Open(asnPath)
		if err != nil {
			_ = e.Close()
			return nil, configurationError(eris.Wrapf(err, "failed to open GeoIP ASN database %s", asnPath))
		}
		e.asn = db
		e.closer = append(e.closer, db.Close)
	}
	logger.Info("GeoIP enrichment enabled", zap.String("city_db", cityPath), zap.String("asn_db", asnPath))
	return e, nil
}

// Enrich sets Enrichment on every row whose value parses as an IP and has
// at least one database hit.
func (e *Enricher) Enrich(rows []GroupedCount) {
	if e == nil {
		return
	}
	for i := range rows {
		ip := net.ParseIP(rows[i].Value)
		if ip == nil {
			continue
		}

		enrichment := &IPEnrichment{}
		found := false

		if e.city != nil {
			record, err := e.city.City(ip)
			if err == nil && record.Country.IsoCode != "" {
				enrichment.Country = record.Country.Names["en"]
				enrichment.CountryCode = record.Country.IsoCode
				if len(record.City.Names) > 0 {
					enrichment.City = record.City.Names["en"]
				}
				found = true
			} else if err != nil {
				e.logger.Debug("GeoIP city lookup failed", zap.String("ip", rows[i].Value), zap.Error(err))
			}
		}

		if e.asn != nil {
			asnRecord, err := e.asn.ASN(ip)
			if err == nil && asnRecord.AutonomousSystemNumber != 0 {
				enrichment.ASN = asnRecord.AutonomousSystemNumber
				enrichment.Organization = asnRecord.AutonomousSystemOrganization
				found = true
			} else if err != nil {
				e.logger.Debug("GeoIP ASN lookup failed", zap.String("ip", rows[i].Value), zap.Error(err))
			}
		}

		if found {
			rows[i].Enrichment = enrichment
		}
	}
}

// Close closes the opened databases
func (e *Enricher) Close() error {
	if e == nil {
		return nil
	}
	var first error
	for _, c := range e.closer {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	e.closer = nil
	return first
}
