package catalog

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"path"
	"strconv"
	"strings"
	"testing/fstest"
	"text/template"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // registers the pgx5:// scheme
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migrate applies pending schema migrations for table. Migration files are
// templates over the quoted table name, so each table keeps its own history in
// "<table>_schema_migrations".
func Migrate(dsn, table string, logger *zap.Logger) error {
	fsys, err := renderMigrations(embeddedMigrations, "migrations", table)
	if err != nil {
		return err
	}

	src, err := iofs.New(fsys, ".")
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}

	dbURL, err := migrateURL(dsn, table)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn("close migrations", zap.NamedError("source_error", srcErr), zap.NamedError("db_error", dbErr))
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", err)
	}
	logger.Info("catalog schema ready",
		zap.String("table", table),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

// migrateURL rewrites a postgres DSN for the pgx/v5 migrate driver. A
// keyword/value DSN ("host=... dbname=...") is converted to the URL form.
func migrateURL(dsn, table string) (string, error) {
	var u *url.URL
	if strings.Contains(dsn, "://") {
		parsed, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse catalog dsn: %w", err)
		}
		switch parsed.Scheme {
		case "postgres", "postgresql", "pgx5":
		default:
			return "", fmt.Errorf("catalog dsn must be a postgres URL, got scheme %q", parsed.Scheme)
		}
		u = parsed
	} else {
		converted, err := keywordDSNToURL(dsn)
		if err != nil {
			return "", err
		}
		u = converted
	}

	u.Scheme = "pgx5"
	q := u.Query()
	q.Set("x-migrations-table", table+"_schema_migrations")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func keywordDSNToURL(dsn string) (*url.URL, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse catalog dsn: %w", err)
	}

	u := &url.URL{Path: "/" + cfg.Database}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else if cfg.User != "" {
		u.User = url.User(cfg.User)
	}

	q := url.Values{}
	port := strconv.Itoa(int(cfg.Port))
	if strings.HasPrefix(cfg.Host, "/") {
		q.Set("host", cfg.Host)
		q.Set("port", port)
	} else {
		u.Host = net.JoinHostPort(cfg.Host, port)
	}
	q.Set("sslmode", sslMode(cfg))
	u.RawQuery = q.Encode()
	return u, nil
}

// sslMode recovers the sslmode keyword from the TLS settings pgx derived.
func sslMode(cfg *pgx.ConnConfig) string {
	if cfg.TLSConfig == nil {
		return "disable"
	}
	for _, fb := range cfg.Fallbacks {
		if fb.TLSConfig == nil {
			return "prefer"
		}
	}
	if cfg.TLSConfig.InsecureSkipVerify {
		return "require"
	}
	return "verify-full"
}

// renderMigrations executes every SQL template under dir and serves the
// results from memory.
func renderMigrations(src fs.FS, dir, table string) (fstest.MapFS, error) {
	entries, err := fs.ReadDir(src, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	data := struct{ Table string }{Table: pgx.Identifier{table}.Sanitize()}
	out := make(fstest.MapFS, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		raw, err := fs.ReadFile(src, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		tmpl, err := template.New(e.Name()).Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("parse migration %s: %w", e.Name(), err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("render migration %s: %w", e.Name(), err)
		}
		out[e.Name()] = &fstest.MapFile{Data: buf.Bytes(), Mode: 0o444}
	}
	return out, nil
}
