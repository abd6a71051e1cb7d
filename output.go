package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Report is everything a run prints
type Report struct {
	Email        *Document      `json:"email"`
	Indicators   Indicators     `json:"indicators"`
	HeaderSearch *SearchResult  `json:"header_search,omitempty"`
	IPs          []GroupedCount `json:"ips"`
	Domains      []GroupedCount `json:"domains"`
}

// SearchResult holds the header search query and its matches
type SearchResult struct {
	Query   HeaderQuery `json:"query"`
	Matches []string    `json:"matches"`
}

// outputJSON writes the report as indented JSON
func outputJSON(w io.Writer, report *Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return eris.Wrap(err, "error encoding JSON")
	}
	return nil
}

// outputText writes search results first, then the grouped IPs and domains
func outputText(w io.Writer, report *Report) {
	if report.HeaderSearch != nil && len(report.HeaderSearch.Matches) > 0 {
		fmt.Fprintln(w, "\nSearch results:")
		for _, header := range report.HeaderSearch.Matches {
			fmt.Fprintln(w, header)
		}
	}

	fmt.Fprintln(w, "\nIPs:")
	writeGrouped(w, report.IPs, "No ips in database")

	fmt.Fprintln(w, "\nDomains:")
	writeGrouped(w, report.Domains, "No domains in database")
}

// writeGrouped prints value<TAB>count rows when the most frequent value occurs
// more than once and bare values when every count is 1.
func writeGrouped(w io.Writer, rows []GroupedCount, empty string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, empty)
		return
	}

	withCounts := rows[0].Count != 1
	for _, row := range rows {
		fields := []string{row.Value}
		if withCounts {
			fields = append(fields, strconv.Itoa(row.Count))
		}
		if row.Enrichment != nil {
			fields = append(fields, formatEnrichment(row.Enrichment))
		}
		fmt.Fprintln(w, strings.Join(fields, "\t"))
	}
}

func formatEnrichment(e *IPEnrichment) string {
	var parts []string
	if e.CountryCode != "" {
		location := e.CountryCode
		if e.City != "" {
			location += " " + e.City
		}
		parts = append(parts, location)
	}
	if e.ASN != 0 {
		as := fmt.Sprintf("AS%d", e.ASN)
		if e.Organization != "" {
			as += " " + e.Organization
		}
		parts = append(parts, as)
	}
	return strings.Join(parts, "\t")
}
