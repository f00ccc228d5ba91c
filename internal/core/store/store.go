package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/tasklist/tasklist/internal/config"
)

const (
	memoryPath       = ":memory:"
	busyTimeoutMilli = 5000
)

// ErrLibsqlUnavailable is returned for a remote libsql store in a binary
// built without cgo.
var ErrLibsqlUnavailable = errors.New("libsql driver unavailable: binary built without cgo")

// Store wraps the task database connection.
type Store struct {
	DB     *sql.DB
	driver string

	// Clock supplies created_at/updated_at timestamps.
	Clock func() time.Time
}

// Open initializes a store connection using the provided configuration.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = config.DriverLibsql
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var (
		dsn   string
		local bool
		err   error
	)
	if driver == config.DriverLibsql && !libsqlAvailable {
		if isRemoteLibsql(cfg) {
			return nil, ErrLibsqlUnavailable
		}
		driver = config.DriverSQLite
	}

	switch driver {
	case config.DriverLibsql:
		dsn, err = buildLibsqlDSN(cfg)
		local = strings.TrimSpace(cfg.URL) == "" && !strings.HasPrefix(dsn, "libsql:")
	case config.DriverSQLite:
		dsn, err = buildSQLiteDSN(cfg)
		local = true
	case config.DriverMySQL:
		dsn, err = buildMySQLDSN(cfg)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s store: %w", driver, err)
	}

	if local {
		if err := configureLocal(ctx, db, dsn == memoryPath); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &Store{DB: db, driver: driver, Clock: time.Now}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Driver returns the configured store driver.
func (s *Store) Driver() string {
	if s == nil {
		return ""
	}
	return s.driver
}

// CheckHealth pings the database.
func (s *Store) CheckHealth(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if err := s.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("store ping failed: %w", err)
	}
	return nil
}

func (s *Store) now() int64 {
	if s.Clock == nil {
		return time.Now().Unix()
	}
	return s.Clock().Unix()
}

// configureLocal pins embedded databases to a single connection so writers
// never contend, and enables WAL plus a busy timeout for file databases.
func configureLocal(ctx context.Context, db *sql.DB, memory bool) error {
	db.SetMaxOpenConns(1)
	if memory {
		return nil
	}

	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&mode); err != nil {
		return fmt.Errorf("enable wal journal: %w", err)
	}

	var timeout int
	if err := db.QueryRowContext(ctx, "PRAGMA busy_timeout="+strconv.Itoa(busyTimeoutMilli)).Scan(&timeout); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	return nil
}

func buildLibsqlDSN(cfg config.StoreConfig) (string, error) {
	if dsn := strings.TrimSpace(cfg.URL); dsn != "" {
		return addAuthToken(dsn, cfg.AuthToken)
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return "", errors.New("store path or url is required")
	}

	if path == memoryPath || strings.HasPrefix(path, "libsql:") {
		return path, nil
	}

	return localFileDSN(path)
}

func isRemoteLibsql(cfg config.StoreConfig) bool {
	return strings.TrimSpace(cfg.URL) != "" || strings.HasPrefix(strings.TrimSpace(cfg.Path), "libsql:")
}

func buildSQLiteDSN(cfg config.StoreConfig) (string, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return "", errors.New("store path is required for the sqlite driver")
	}
	if path == memoryPath {
		return path, nil
	}
	return localFileDSN(path)
}

func localFileDSN(path string) (string, error) {
	if strings.HasPrefix(path, "file:") {
		localPath, err := extractFilePath(path)
		if err != nil {
			return "", err
		}
		if err := ensureStoreDir(localPath); err != nil {
			return "", err
		}
		return path, nil
	}

	if err := ensureStoreDir(path); err != nil {
		return "", err
	}
	return "file:" + filepath.Clean(path), nil
}

func buildMySQLDSN(cfg config.StoreConfig) (string, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return "", errors.New("store name is required for the mysql driver")
	}

	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 3306
	}

	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	mc.DBName = name
	mc.Params = map[string]string{"charset": "utf8mb4"}

	return mc.FormatDSN(), nil
}

func addAuthToken(dsn string, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return dsn, nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}

	query := parsed.Query()
	if query.Get("authToken") == "" {
		query.Set("authToken", token)
		parsed.RawQuery = query.Encode()
	}

	return parsed.String(), nil
}

func extractFilePath(dsn string) (string, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store path: %w", err)
	}

	if parsed.Path != "" {
		return strings.TrimPrefix(parsed.Path, "//"), nil
	}

	return strings.TrimPrefix(parsed.Opaque, "//"), nil
}

func ensureStoreDir(path string) error {
	if strings.TrimSpace(path) == "" || path == memoryPath {
		return nil
	}

	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}

	// #nosec G301 -- data directories use 0755 for multi-user access compatibility
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}
