package main

import (
	"errors"
	"net"
	"testing"

	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
)

type fakeGeo struct {
	cities map[string]*geoip2.City
	asns   map[string]*geoip2.ASN
}

func (f *fakeGeo) City(ip net.IP) (*geoip2.City, error) {
	if c, ok := f.cities[ip.String()]; ok {
		return c, nil
	}
	return &geoip2.City{}, nil
}

func (f *fakeGeo) ASN(ip net.IP) (*geoip2.ASN, error) {
	if a, ok := f.asns[ip.String()]; ok {
		return a, nil
	}
	return nil, errors.New("not found")
}

func TestEnrich(t *testing.T) {
	sydney := &geoip2.City{}
	sydney.Country.IsoCode = "AU"
	sydney.Country.Names = map[string]string{"en": "Australia"}
	sydney.City.Names = map[string]string{"en": "Sydney"}

	geo := &fakeGeo{
		cities: map[string]*geoip2.City{"1.1.1.1": sydney},
		asns: map[string]*geoip2.ASN{
			"1.1.1.1":        {AutonomousSystemNumber: 13335, AutonomousSystemOrganization: "CLOUDFLARENET"},
			"2001:4860::8888": {AutonomousSystemNumber: 15169, AutonomousSystemOrganization: "GOOGLE"},
		},
	}
	e := &Enricher{city: geo, asn: geo, logger: zap.NewNop()}

	rows := []GroupedCount{
		{Value: "1.1.1.1", Count: 2},
		{Value: "2001:4860::8888", Count: 1},
		{Value: "192.0.2.1", Count: 1},
		{Value: "::::", Count: 1},
	}
	e.Enrich(rows)

	first := rows[0].Enrichment
	if first == nil || first.CountryCode != "AU" || first.Country != "Australia" || first.City != "Sydney" || first.ASN != 13335 {
		t.Errorf("unexpected enrichment for 1.1.1.1: %+v", first)
	}
	second := rows[1].Enrichment
	if second == nil || second.ASN != 15169 || second.CountryCode != "" {
		t.Errorf("unexpected enrichment for IPv6: %+v", second)
	}
	if rows[2].Enrichment != nil {
		t.Errorf("expected no enrichment without database hits, got %+v", rows[2].Enrichment)
	}
	if rows[3].Enrichment != nil {
		t.Errorf("expected no enrichment for unparseable IP, got %+v", rows[3].Enrichment)
	}
}

func TestNilEnricher(t *testing.T) {
	var e *Enricher
	rows := []GroupedCount{{Value: "1.1.1.1", Count: 1}}
	e.Enrich(rows)
	if rows[0].Enrichment != nil {
		t.Error("nil enricher must not enrich")
	}
	if err := e.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestOpenEnricher(t *testing.T) {
	t.Setenv("GEOIP_DB_PATH", "")
	t.Setenv("GEOIP_ASN_DB_PATH", "")

	e, err := openEnricher("", "", zap.NewNop())
	if err != nil || e != nil {
		t.Errorf("expected disabled enrichment, got %v, %v", e, err)
	}

	_, err = openEnricher(writeFile(t, "GeoLite2-City.mmdb", []byte("not a database")), "", zap.NewNop())
	if !IsKind(err, KindConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
