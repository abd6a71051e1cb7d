package main

import (
	"context"
	"database/sql"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Tables and their value columns
const (
	TableIPs       = "ips"
	ColumnIP       = "ip"
	TableDomains   = "domains"
	ColumnDomain   = "domain"
	connectTimeout = 10 * time.Second
)

// schema is recreated from scratch on every connection, ips first
var schema = []struct {
	table  string
	create string
}{
	{TableIPs, "CREATE TABLE ips (id INT PRIMARY KEY AUTO_INCREMENT UNIQUE, ip VARCHAR(255) NOT NULL)"},
	{TableDomains, "CREATE TABLE domains (id INT PRIMARY KEY AUTO_INCREMENT UNIQUE, domain VARCHAR(255) NOT NULL)"},
}

// groupedQueries holds the only table/column pairs QueryGrouped accepts.
// Identifiers cannot be bound as parameters.
var groupedQueries = map[[2]string]string{
	{TableIPs, ColumnIP}:         "SELECT ip, COUNT(ip) FROM ips GROUP BY ip ORDER BY COUNT(ip) DESC",
	{TableDomains, ColumnDomain}: "SELECT domain, COUNT(domain) FROM domains GROUP BY domain ORDER BY COUNT(domain) DESC",
}

const (
	insertIPQuery     = "INSERT INTO ips(ip) VALUES (?)"
	insertDomainQuery = "INSERT INTO domains(domain) VALUES (?)"
)

// GroupedCount is one row of a grouped frequency query
type GroupedCount struct {
	Value      string        `json:"value"`
	Count      int           `json:"count"`
	Enrichment *IPEnrichment `json:"enrichment,omitempty"`
}

// openFunc opens a database handle for a DSN
type openFunc func(dsn string) (*sql.DB, error)

func openMySQL(dsn string) (*sql.DB, error) {
	return sql.Open("mysql", dsn)
}

// openDatabase is the opener used by NewConnector
var openDatabase openFunc = openMySQL

// Gateway owns the database connection and the ips/domains schema. Inserts
// accumulate in one transaction until Commit.
type Gateway struct {
	db      *sql.DB
	cfg     DBConfig
	tx      *sql.Tx
	logger  *zap.Logger
	metrics *Metrics
}

// Connector hands out the process's Gateway. The first successful
// connection is kept, later calls return it and ignore their configuration.
type Connector struct {
	Logger  *zap.Logger
	Metrics *Metrics

	open openFunc
	gw   *Gateway
}

// NewConnector returns a Connector that opens MySQL connections
func NewConnector(logger *zap.Logger, metrics *Metrics) *Connector {
	return &Connector{Logger: logger, Metrics: metrics, open: openDatabase}
}

// Gateway connects with cfg on first use and resets the schema
func (c *Connector) Gateway(ctx context.Context, cfg DBConfig) (*Gateway, error) {
	if c.gw != nil {
		c.Logger.Debug("Gateway already connected, keeping first configuration",
			zap.String("host", c.gw.cfg.Host),
			zap.String("db", c.gw.cfg.DB),
		)
		return c.gw, nil
	}

	open := c.open
	if open == nil {
		open = openMySQL
	}
	gw, err := connectGateway(ctx, cfg, open, c.Logger, c.Metrics)
	if err != nil {
		return nil, err
	}
	c.gw = gw
	return gw, nil
}

// Close releases the held Gateway, if any
func (c *Connector) Close() error {
	if c.gw == nil {
		return nil
	}
	err := c.gw.Close()
	c.gw = nil
	return err
}

// dsn renders cfg as a go-sql-driver/mysql DSN
func (cfg DBConfig) dsn() string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.DB
	mc.Timeout = connectTimeout
	return mc.FormatDSN()
}

func connectGateway(ctx context.Context, cfg DBConfig, open openFunc, logger *zap.Logger, metrics *Metrics) (*Gateway, error) {
	if cfg.Password == "" {
		return nil, configurationError(eris.New("password could not be an empty string, check db configuration"))
	}
	if cfg.DB == "" {
		return nil, configurationError(eris.New("you have to select database to connect to, check db configuration"))
	}

	db, err := open(cfg.dsn())
	if err != nil {
		return nil, connectionError(eris.Wrapf(err, "can not connect to database %s on %s:%d", cfg.DB, cfg.Host, cfg.Port))
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, connectionError(eris.Wrapf(err, "can not connect to database %s on %s:%d", cfg.DB, cfg.Host, cfg.Port))
	}
	logger.Info("Database connected.", zap.String("host", cfg.Host), zap.Int("port", cfg.Port), zap.String("db", cfg.DB))

	gw := &Gateway{db: db, cfg: cfg, logger: logger, metrics: metrics}
	if err := gw.resetTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return gw, nil
}

// resetTables drops and recreates both tables
func (g *Gateway) resetTables(ctx context.Context) error {
	for _, t := range schema {
		if _, err := g.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+t.table); err != nil {
			return eris.Wrapf(err, "failed to drop table %s", t.table)
		}
		g.logger.Debug("Old table dropped", zap.String("table", t.table))

		if _, err := g.db.ExecContext(ctx, t.create); err != nil {
			return eris.Wrapf(err, "failed to create table %s", t.table)
		}
		g.logger.Info("Table created", zap.String("table", t.table))
	}
	return nil
}

func (g *Gateway) pending(ctx context.Context) (*sql.Tx, error) {
	if g.tx != nil {
		return g.tx, nil
	}
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "failed to begin insert batch")
	}
	g.tx = tx
	return tx, nil
}

func (g *Gateway) insert(ctx context.Context, query, table, value string) error {
	tx, err := g.pending(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, value); err != nil {
		return eris.Wrapf(err, "failed to insert %q into %s", value, table)
	}
	g.metrics.countStored(table)
	return nil
}

// InsertIP appends value to the ips table in the pending batch
func (g *Gateway) InsertIP(ctx context.Context, value string) error {
	if err := g.insert(ctx, insertIPQuery, TableIPs, value); err != nil {
		return err
	}
	g.logger.Info("Ip added to db", zap.String("ip", value))
	return nil
}

// InsertDomain appends value to the domains table in the pending batch
func (g *Gateway) InsertDomain(ctx context.Context, value string) error {
	if err := g.insert(ctx, insertDomainQuery, TableDomains, value); err != nil {
		return err
	}
	g.logger.Info("Domain added to db", zap.String("domain", value))
	return nil
}

// Commit writes all pending inserts. It is a no-op without pending inserts.
func (g *Gateway) Commit() error {
	if g.tx == nil {
		return nil
	}
	tx := g.tx
	g.tx = nil
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "failed to commit insert batch")
	}
	return nil
}

// StoreIndicators inserts every indicator of ind and commits them together
func (g *Gateway) StoreIndicators(ctx context.Context, ind Indicators) error {
	start := time.Now()
	for _, v := range ind.IPv4 {
		if err := g.InsertIP(ctx, v); err != nil {
			return err
		}
	}
	for _, v := range ind.IPv6 {
		if err := g.InsertIP(ctx, v); err != nil {
			return err
		}
	}
	for _, v := range ind.Domains {
		if err := g.InsertDomain(ctx, v); err != nil {
			return err
		}
	}
	if err := g.Commit(); err != nil {
		return err
	}
	g.metrics.observePhase("store", time.Since(start))
	return nil
}

// QueryGrouped counts the distinct values of column in table, most frequent
// first.
func (g *Gateway) QueryGrouped(ctx context.Context, table, column string) ([]GroupedCount, error) {
	query, ok := groupedQueries[[2]string{table, column}]
	if !ok {
		return nil, eris.Errorf("unknown table/column pair %s.%s", table, column)
	}

	rows, err := g.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to query %s", table)
	}
	defer func() { _ = rows.Close() }()

	counts := []GroupedCount{}
	for rows.Next() {
		var gc GroupedCount
		if err := rows.Scan(&gc.Value, &gc.Count); err != nil {
			return nil, eris.Wrapf(err, "failed to scan %s row", table)
		}
		counts = append(counts, gc)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "failed to read %s rows", table)
	}

	g.logger.Info("Selected rows", zap.String("table", table), zap.Int("rows", len(counts)))
	return counts, nil
}

// Close rolls back uncommitted inserts and closes the connection pool
func (g *Gateway) Close() error {
	if g.tx != nil {
		_ = g.tx.Rollback()
		g.tx = nil
	}
	return g.db.Close()
}
