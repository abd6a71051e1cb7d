package main

import (
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// MatchTimeout bounds a single pattern scan over a document
const MatchTimeout = 5 * time.Second

// Indicator kinds
const (
	KindIPv4   = "ipv4"
	KindIPv6   = "ipv6"
	KindDomain = "domain"
)

// The boundary guards reject tokens glued to a word character or a dot on
// either side, so segments of longer dotted names and version strings are
// not reported.
var (
	ipv4Pattern = mustPattern(`(?<!\w|\.)(\d{1,3}(?:\.\d{1,3}){3})(?!\.?\w)`)
	ipv6Pattern = mustPattern(`(?<!\w|\.)([\dA-Fa-f]{0,4}(?::[\dA-Fa-f]{0,4}){4,8}(?!\.?\w))`)
)

const (
	domainPatternPrefix = `(?<!\w|\.)([\w\-]+(?:\.\w+)*(?:\.(?:`
	domainPatternSuffix = `)))(?!\.?\w)`
)

func mustPattern(expr string) *regexp2.Regexp {
	re := regexp2.MustCompile(expr, regexp2.None)
	re.MatchTimeout = MatchTimeout
	return re
}

// Indicators holds every match of one extraction pass, in document order,
// duplicates included.
type Indicators struct {
	IPv4    []string `json:"ipv4"`
	IPv6    []string `json:"ipv6"`
	Domains []string `json:"domains"`
}

// Total returns the number of indicators across all kinds
func (ind Indicators) Total() int {
	return len(ind.IPv4) + len(ind.IPv6) + len(ind.Domains)
}

// Extractor finds indicators in email documents. The TLD list is reloaded on
// every call.
type Extractor struct {
	TLDPath string
	Logger  *zap.Logger
	Metrics *Metrics
}

// Extract loads the TLD alternation and runs all three patterns over document
func (e *Extractor) Extract(document string) (Indicators, error) {
	tlds := loadTLDAlternation(e.TLDPath, e.Logger)

	start := time.Now()
	ind, err := extractIndicators(document, tlds)
	if err != nil {
		return Indicators{}, err
	}
	e.Metrics.observePhase("extract", time.Since(start))
	e.Metrics.countIndicators(ind)

	e.Logger.Debug("Indicators extracted",
		zap.Int("ipv4", len(ind.IPv4)),
		zap.Int("ipv6", len(ind.IPv6)),
		zap.Int("domains", len(ind.Domains)),
	)
	return ind, nil
}

// extractIndicators applies the IPv4, IPv6 and domain patterns to document.
// tlds is an alternation fragment such as "com|org".
func extractIndicators(document, tlds string) (Indicators, error) {
	if !utf8.ValidString(document) {
		return Indicators{}, inputError(eris.New("email content has incorrect type: not UTF-8 text"))
	}

	domainPattern, err := compileDomainPattern(tlds)
	if err != nil {
		return Indicators{}, err
	}

	var ind Indicators
	if ind.IPv4, err = findAll(ipv4Pattern, document); err != nil {
		return Indicators{}, eris.Wrap(err, "IPv4 scan failed")
	}
	if ind.IPv6, err = findAll(ipv6Pattern, document); err != nil {
		return Indicators{}, eris.Wrap(err, "IPv6 scan failed")
	}
	if ind.Domains, err = findAll(domainPattern, document); err != nil {
		return Indicators{}, eris.Wrap(err, "domain scan failed")
	}
	return ind, nil
}

func compileDomainPattern(tlds string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(domainPatternPrefix+tlds+domainPatternSuffix, regexp2.None)
	if err != nil {
		return nil, configurationError(eris.Wrapf(err, "invalid TLD configuration %q", tlds))
	}
	re.MatchTimeout = MatchTimeout
	return re, nil
}

// findAll returns every non-overlapping match of re in s. When the pattern
// has exactly one capture group the group's text is returned, otherwise the
// whole match.
func findAll(re *regexp2.Regexp, s string) ([]string, error) {
	single := len(re.GetGroupNumbers()) == 2

	matches := []string{}
	m, err := re.FindStringMatch(s)
	for m != nil {
		if single {
			matches = append(matches, m.GroupByNumber(1).String())
		} else {
			matches = append(matches, m.String())
		}
		m, err = re.FindNextMatch(m)
	}
	if err != nil {
		return nil, eris.Wrap(err, "pattern match failed")
	}
	return matches, nil
}
