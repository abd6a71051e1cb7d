// Command emlscan extracts IPv4/IPv6 addresses and domain names from an email
// file, stores them in MySQL and prints how often each one occurs. It can
// also search the email header region by substring or regular expression.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const version = "1.0.0"

// DefaultLogFile receives all log lines unless --log-file is given
const DefaultLogFile = "main.log"

// legacyFlags maps the two-letter single-dash flags of earlier releases to
// their long forms.
var legacyFlags = map[string]string{
	"-cl": "--change-level",
	"-hp": "--header-pattern",
	"-hs": "--header-string",
}

type options struct {
	emailPath      string
	logLevel       string
	pattern        string
	substring      string
	dbConfig       string
	tldConfig      string
	logFile        string
	headerFallback string
	zipPassword    string
	geoDB          string
	asnDB          string
	metricsFile    string
	jsonOutput     bool

	patternSet   bool
	substringSet bool
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command with args and returns the process exit code
func execute(args []string, stdout, stderr io.Writer) int {
	opts := &options{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(rewriteLegacyFlags(args))
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", userMessage(err))
	}
	return exitCode(err)
}

func newRootCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emlscan -e <email.eml> [flags]",
		Short: "emlscan - extract IPs and domains from an email and count them in MySQL",
		Long: `Finds all IPv4/IPv6 addresses and domain names in an email file, writes them
into the ips and domains tables (recreated on every run) and prints them grouped
by frequency. Optionally searches the email header by substring (--header-string)
or regex pattern (--header-pattern).`,
		Example: `  emlscan -e sample.eml
  emlscan -e sample.eml -hs From
  emlscan -e sample.eml -hp '^Received: .*' -cl INFO
  emlscan -e sample.eml.zip --zip-password infected --json`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return &usageError{eris.Errorf("unexpected arguments: %s", strings.Join(args, " "))}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.emailPath == "" {
				return &usageError{eris.New(`required flag "email" not set`)}
			}
			opts.patternSet = cmd.Flags().Changed("header-pattern")
			opts.substringSet = cmd.Flags().Changed("header-string")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts, cmd.OutOrStdout())
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err}
	})

	flags := cmd.Flags()
	flags.StringVarP(&opts.emailPath, "email", "e", "", "Path to email file (must contain \".eml\")")
	flags.StringVar(&opts.logLevel, "change-level", "", "Change level of logging: DEBUG, INFO, WARNING, ERROR, CRITICAL (default DEBUG)")
	flags.StringVar(&opts.pattern, "header-pattern", "", "Search header with regex pattern")
	flags.StringVar(&opts.substring, "header-string", "", "Search header with substring")
	flags.StringVar(&opts.dbConfig, "db-config", DefaultDBConfigFile, "Path to JSON database configuration")
	flags.StringVar(&opts.tldConfig, "tld-config", DefaultTLDConfigFile, "Path to TLD list, one per line")
	flags.StringVar(&opts.logFile, "log-file", DefaultLogFile, "Path to the append-only log file")
	flags.StringVar(&opts.headerFallback, "header-fallback", string(FallbackWhole),
		"Header region when no \"<!DOCTYPE html\" marker exists: whole or trim-last")
	flags.StringVar(&opts.zipPassword, "zip-password", DefaultZipPassword, "Password for encrypted .eml.zip archives")
	flags.StringVar(&opts.geoDB, "geoip-db", "", "Path to MaxMind GeoIP2 city database (or GEOIP_DB_PATH)")
	flags.StringVar(&opts.asnDB, "asn-db", "", "Path to MaxMind GeoIP2 ASN database (or GEOIP_ASN_DB_PATH)")
	flags.StringVar(&opts.metricsFile, "metrics-textfile", "", "Write Prometheus metrics to this file")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

// rewriteLegacyFlags turns "-cl", "-hp" and "-hs" (optionally with "=value")
// into their long forms. Arguments after "--" are left alone.
func rewriteLegacyFlags(args []string) []string {
	out := make([]string, 0, len(args))
	for i, arg := range args {
		if arg == "--" {
			return append(out, args[i:]...)
		}
		name, value, hasValue := strings.Cut(arg, "=")
		if long, ok := legacyFlags[name]; ok {
			if hasValue {
				arg = long + "=" + value
			} else {
				arg = long
			}
		}
		out = append(out, arg)
	}
	return out
}

// headerQuery builds the header search from the flags. A flag given with an
// empty value, or both flags, is a conflict. Neither flag means no search.
func (o *options) headerQuery() (HeaderQuery, error) {
	q := HeaderQuery{Pattern: o.pattern, Substring: o.substring}
	if !o.patternSet && !o.substringSet {
		return HeaderQuery{}, nil
	}
	if err := q.Validate(); err != nil {
		return HeaderQuery{}, err
	}
	if (o.patternSet && o.pattern == "") || (o.substringSet && o.substring == "") {
		return HeaderQuery{}, conflictError(eris.New("header search flags need a non-empty value"))
	}
	return q, nil
}

func run(ctx context.Context, opts *options, stdout io.Writer) (err error) {
	level := zap.NewAtomicLevelAt(zapcore.DebugLevel)
	logger, closeLog := newLogger(opts.logFile, level)
	defer closeLog()

	logger.Info("Program started", zap.String("version", version))
	defer func() {
		if err != nil {
			logger.Error("Program aborted", zap.String("error", eris.ToString(err, true)))
			return
		}
		logger.Info("Program ended")
	}()

	if l, ok := parseLogLevel(opts.logLevel); ok {
		logger.Info("Level changed", zap.String("level", levelName(l)))
		level.SetLevel(l)
	} else if opts.logLevel != "" {
		logger.Debug("Unknown log level ignored", zap.String("level", opts.logLevel))
	}

	fallback, err := parseHeaderFallback(opts.headerFallback)
	if err != nil {
		return err
	}
	query, err := opts.headerQuery()
	if err != nil {
		return err
	}

	metrics := NewMetrics()
	start := time.Now()

	cfg, err := loadDBConfig(opts.dbConfig)
	if err != nil {
		return err
	}
	logger.Debug("Db configuration loaded", zap.String("path", opts.dbConfig))

	doc, err := loadEmail(opts.emailPath, opts.zipPassword, logger)
	if err != nil {
		return err
	}

	enricher, err := openEnricher(opts.geoDB, opts.asnDB, logger)
	if err != nil {
		return err
	}
	defer func() { _ = enricher.Close() }()

	connector := NewConnector(logger, metrics)
	defer func() { _ = connector.Close() }()

	gw, err := connector.Gateway(ctx, *cfg)
	if err != nil {
		return err
	}

	extractor := &Extractor{TLDPath: opts.tldConfig, Logger: logger, Metrics: metrics}
	ind, err := extractor.Extract(doc.Text)
	if err != nil {
		return err
	}
	if err := gw.StoreIndicators(ctx, ind); err != nil {
		return err
	}

	report := &Report{Email: doc, Indicators: ind}

	if query.Enabled() {
		matches, err := searchHeader(doc.Text, query, fallback)
		if err != nil {
			return err
		}
		logger.Info("Header search finished",
			zap.Int("matches", len(matches)),
			zap.String("pattern", query.Expression()),
		)
		metrics.countHeaderMatches(len(matches))
		report.HeaderSearch = &SearchResult{Query: query, Matches: matches}
	}

	if report.IPs, err = gw.QueryGrouped(ctx, TableIPs, ColumnIP); err != nil {
		return err
	}
	if report.Domains, err = gw.QueryGrouped(ctx, TableDomains, ColumnDomain); err != nil {
		return err
	}

	enricher.Enrich(report.IPs)

	if opts.jsonOutput {
		if err := outputJSON(stdout, report); err != nil {
			return err
		}
	} else {
		outputText(stdout, report)
	}

	metrics.observePhase("total", time.Since(start))
	return metrics.WriteTextfile(opts.metricsFile)
}
