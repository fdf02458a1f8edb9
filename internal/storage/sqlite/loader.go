// Package sqlite rebuilds the per-era bill database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/openpolitica/proyectos-ley/internal/bill"
	"github.com/openpolitica/proyectos-ley/internal/crawler"
	"github.com/openpolitica/proyectos-ley/internal/era"
)

// Signer roles stored in the signer table.
const (
	RoleAuthor   = "AUTHOR"
	RoleCoAuthor = "CO_AUTHOR"
	RoleAdherent = "ADHERENT"
)

const driverName = "sqlite"

// Connection settings applied before the tables are rebuilt.
var pragmas = []string{
	"PRAGMA page_size = 32768",
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = OFF",
	"PRAGMA temp_store = MEMORY",
	"PRAGMA mmap_size = 300000000",
}

// Loader writes one database file per era under dir.
type Loader struct {
	dir    string
	logger *zap.Logger
}

// NewLoader builds a Loader rooted at dir.
func NewLoader(dir string, logger *zap.Logger) *Loader {
	if dir == "" {
		dir = "."
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{dir: dir, logger: logger}
}

// Path is the database file of period.
func (l *Loader) Path(period era.Period) string {
	return filepath.Join(l.dir, period.DatabaseName())
}

// Load drops and rebuilds the four tables of period from bills and returns
// the database path. Every failure wraps crawler.ErrPersistence.
func (l *Loader) Load(ctx context.Context, period era.Period, bills []bill.Metadata) (string, error) {
	path := l.Path(period)
	logger := l.logger.With(zap.Stringer("era", period), zap.String("path", path))

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w: %w", crawler.ErrPersistence, err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w: %w", path, crawler.ErrPersistence, err)
	}
	defer db.Close()
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return "", fmt.Errorf("%s: %w: %w", p, crawler.ErrPersistence, err)
		}
	}

	records := prepare(bills, logger)
	for _, t := range tables {
		start := time.Now()
		n, err := t.load(ctx, db, period, records)
		if err != nil {
			return "", fmt.Errorf("load table %s: %w: %w", t.name, crawler.ErrPersistence, err)
		}
		logger.Info("table loaded",
			zap.String("table", t.name),
			zap.Int("rows", n),
			zap.Duration("duration", time.Since(start)),
		)
	}

	for _, stmt := range []string{"VACUUM", "PRAGMA optimize"} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return "", fmt.Errorf("%s: %w: %w", stmt, crawler.ErrPersistence, err)
		}
	}
	return path, nil
}

// prepare sorts records by id and keeps the first record of each id.
func prepare(bills []bill.Metadata, logger *zap.Logger) []bill.Metadata {
	sorted := bill.UniqueMetadata(bills)
	out := make([]bill.Metadata, 0, len(sorted))
	for _, m := range sorted {
		if n := len(out); n > 0 && out[n-1].ID() == m.ID() {
			logger.Warn("conflicting records for bill; keeping the first", zap.String("bill_id", m.ID()))
			continue
		}
		out = append(out, m)
	}
	return out
}

type table struct {
	name    string
	create  string
	indexes []string
	columns int
	rows    func(period era.Period, m bill.Metadata) ([][]any, error)
}

func (t table) load(ctx context.Context, db *sql.DB, period era.Period, records []bill.Metadata) (int, error) {
	if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+t.name); err != nil {
		return 0, fmt.Errorf("drop: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(t.create, t.name)); err != nil {
		return 0, fmt.Errorf("create: %w", err)
	}
	for _, col := range t.indexes {
		stmt := fmt.Sprintf(`CREATE INDEX %[1]s_%[2]s ON %[1]s("%[2]s")`, t.name, col)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("index %s: %w", col, err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertStatement(t.name, t.columns))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, m := range records {
		rows, err := t.rows(period, m)
		if err != nil {
			return 0, fmt.Errorf("bill %s: %w", m.ID(), err)
		}
		for _, args := range rows {
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return 0, fmt.Errorf("insert bill %s: %w", m.ID(), err)
			}
			n++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func insertStatement(name string, columns int) string {
	placeholders := make([]byte, 0, columns*2)
	for i := range columns {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return fmt.Sprintf("INSERT INTO %s VALUES (%s)", name, placeholders)
}

var tables = []table{
	{
		name: "bill",
		create: `CREATE TABLE %s (
	id TEXT PRIMARY KEY,
	era TEXT NOT NULL,
	number INTEGER NOT NULL,
	era_code TEXT,
	legislature TEXT,
	presented_on TEXT,
	proponent TEXT,
	parliamentary_group TEXT,
	status TEXT,
	title TEXT,
	summary TEXT,
	current_committee TEXT,
	record_url TEXT,
	signers TEXT,
	author TEXT,
	co_authors TEXT,
	adherents TEXT,
	committees TEXT,
	grouped_initiatives TEXT
)`,
		indexes: []string{"legislature", "proponent", "parliamentary_group", "status", "current_committee", "author"},
		columns: 19,
		rows:    billRows,
	},
	{
		name: "tracking_event",
		create: `CREATE TABLE %s (
	bill_id TEXT NOT NULL,
	occurred_on TEXT NOT NULL,
	detail TEXT NOT NULL,
	committee TEXT,
	status TEXT,
	FOREIGN KEY(bill_id) REFERENCES bill(id)
)`,
		indexes: []string{"committee"},
		columns: 5,
		rows:    trackingRows,
	},
	{
		name: "signer",
		create: `CREATE TABLE %s (
	bill_id TEXT NOT NULL,
	legislator TEXT NOT NULL,
	role TEXT NOT NULL,
	FOREIGN KEY(bill_id) REFERENCES bill(id)
)`,
		indexes: []string{"legislator", "role"},
		columns: 3,
		rows:    signerRows,
	},
	{
		name: "grouped_initiative",
		create: `CREATE TABLE %s (
	bill_id TEXT NOT NULL,
	grouped_bill_id TEXT NOT NULL,
	FOREIGN KEY(bill_id) REFERENCES bill(id),
	FOREIGN KEY(grouped_bill_id) REFERENCES bill(id)
)`,
		columns: 2,
		rows:    groupedRows,
	},
}

func billRows(period era.Period, m bill.Metadata) ([][]any, error) {
	signers, err := jsonArray(bill.Names(m.Signers()))
	if err != nil {
		return nil, err
	}
	coAuthors, err := jsonArray(bill.Names(m.CoAuthors))
	if err != nil {
		return nil, err
	}
	adherents, err := jsonArray(bill.Names(m.Adherents))
	if err != nil {
		return nil, err
	}
	committees, err := jsonArray(m.CommitteeNames())
	if err != nil {
		return nil, err
	}
	grouped, err := jsonArray(groupedTokens(m))
	if err != nil {
		return nil, err
	}
	var author any
	if m.Author != nil {
		author = nullString(m.Author.Name)
	}
	return [][]any{{
		m.ID(),
		period.String(),
		m.Number,
		nullString(m.EraCode),
		nullString(m.Legislature),
		nullString(m.PresentedOn.String()),
		nullString(m.Proponent),
		nullString(m.ParliamentaryGroup),
		nullString(m.Status),
		nullString(m.Title),
		nullString(m.Summary),
		nullString(m.CurrentCommittee),
		nullString(m.RecordURL),
		signers,
		author,
		coAuthors,
		adherents,
		committees,
		grouped,
	}}, nil
}

func trackingRows(_ era.Period, m bill.Metadata) ([][]any, error) {
	rows := make([][]any, 0, len(m.Tracking))
	for _, ev := range m.Tracking {
		if ev.Date.IsZero() {
			continue
		}
		rows = append(rows, []any{m.ID(), ev.Date.Slashed(), ev.Detail, nullString(ev.Committee), nullString(ev.Status)})
	}
	return rows, nil
}

func signerRows(_ era.Period, m bill.Metadata) ([][]any, error) {
	var rows [][]any
	if m.Author != nil && m.Author.Name != "" {
		rows = append(rows, []any{m.ID(), m.Author.Name, RoleAuthor})
	}
	for _, name := range bill.Names(m.CoAuthors) {
		rows = append(rows, []any{m.ID(), name, RoleCoAuthor})
	}
	for _, name := range bill.Names(m.Adherents) {
		rows = append(rows, []any{m.ID(), name, RoleAdherent})
	}
	return rows, nil
}

func groupedRows(period era.Period, m bill.Metadata) ([][]any, error) {
	ids := groupedIDs(period, m)
	rows := make([][]any, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, []any{m.ID(), id})
	}
	return rows, nil
}

// groupedTokens returns the grouped-initiative tokens as published, without
// blanks. The bill row keeps them raw; grouped_initiative holds the ids.
func groupedTokens(m bill.Metadata) []string {
	var out []string
	for _, token := range m.GroupedInitiatives {
		if token = strings.TrimSpace(token); token != "" {
			out = bill.AppendUnique(out, token)
		}
	}
	return out
}

// groupedIDs resolves the raw grouped-initiative tokens to bill ids, skipping
// blanks.
func groupedIDs(period era.Period, m bill.Metadata) []string {
	var out []string
	for _, token := range m.GroupedInitiatives {
		if strings.TrimSpace(token) == "" {
			continue
		}
		out = bill.AppendUnique(out, period.GroupedID(token))
	}
	return out
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// jsonArray encodes values as a sorted JSON array, or NULL when empty.
func jsonArray(values []string) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	data, err := json.Marshal(sorted)
	if err != nil {
		return nil, fmt.Errorf("encode json array: %w", err)
	}
	return string(data), nil
}
