package main

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestWriteGrouped(t *testing.T) {
	tests := []struct {
		name     string
		rows     []GroupedCount
		expected string
	}{
		{
			name:     "Counts when a value repeats",
			rows:     []GroupedCount{{Value: "1.1.1.1", Count: 2}, {Value: "2.2.2.2", Count: 1}},
			expected: "1.1.1.1\t2\n2.2.2.2\t1\n",
		},
		{
			name:     "Bare values when every count is one",
			rows:     []GroupedCount{{Value: "1.1.1.1", Count: 1}, {Value: "2.2.2.2", Count: 1}},
			expected: "1.1.1.1\n2.2.2.2\n",
		},
		{
			name:     "Empty",
			rows:     []GroupedCount{},
			expected: "No ips in database\n",
		},
		{
			name: "Enriched row",
			rows: []GroupedCount{{
				Value: "1.1.1.1",
				Count: 3,
				Enrichment: &IPEnrichment{
					CountryCode:  "AU",
					City:         "Sydney",
					ASN:          13335,
					Organization: "CLOUDFLARENET",
				},
			}},
			expected: "1.1.1.1\t3\tAU Sydney\tAS13335 CLOUDFLARENET\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			writeGrouped(&buf, tt.rows, "No ips in database")
			if buf.String() != tt.expected {
				t.Errorf("writeGrouped() = %q, expected %q", buf.String(), tt.expected)
			}
		})
	}
}

func TestOutputText(t *testing.T) {
	report := &Report{
		HeaderSearch: &SearchResult{
			Query:   HeaderQuery{Substring: "From"},
			Matches: []string{"From: a@b.com"},
		},
		IPs:     []GroupedCount{{Value: "1.1.1.1", Count: 2}, {Value: "2.2.2.2", Count: 1}},
		Domains: []GroupedCount{{Value: "example.com", Count: 1}},
	}

	var buf bytes.Buffer
	outputText(&buf, report)

	expected := "\nSearch results:\nFrom: a@b.com\n" +
		"\nIPs:\n1.1.1.1\t2\n2.2.2.2\t1\n" +
		"\nDomains:\nexample.com\n"
	if buf.String() != expected {
		t.Errorf("outputText() = %q, expected %q", buf.String(), expected)
	}
}

func TestOutputTextWithoutMatches(t *testing.T) {
	report := &Report{
		HeaderSearch: &SearchResult{Query: HeaderQuery{Substring: "X-None"}, Matches: []string{}},
	}

	var buf bytes.Buffer
	outputText(&buf, report)

	expected := "\nIPs:\nNo ips in database\n\nDomains:\nNo domains in database\n"
	if buf.String() != expected {
		t.Errorf("outputText() = %q, expected %q", buf.String(), expected)
	}
}

func TestOutputJSON(t *testing.T) {
	report := &Report{
		Email:      &Document{Path: "sample.eml", Meta: MessageMeta{Subject: "Hi"}},
		Indicators: Indicators{IPv4: []string{"1.1.1.1"}, IPv6: []string{}, Domains: []string{}},
		IPs:        []GroupedCount{{Value: "1.1.1.1", Count: 1}},
		Domains:    []GroupedCount{},
	}

	var buf bytes.Buffer
	if err := outputJSON(&buf, report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	email := decoded["email"].(map[string]any)
	if email["path"] != "sample.eml" {
		t.Errorf("email.path = %v", email["path"])
	}
	if _, ok := email["Text"]; ok {
		t.Error("document text must not be serialized")
	}
	if _, ok := decoded["header_search"]; ok {
		t.Error("header_search should be omitted without a search")
	}
}
