package database

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func openPostgres(cfg Config) (*gorm.DB, error) {
	dsn, err := buildPostgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(postgres.Open(dsn), gormConfig())
}

func openMySQL(cfg Config) (*gorm.DB, error) {
	dsn, err := buildMySQLDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(mysql.Open(dsn), gormConfig())
}

// buildPostgresDSN renders a key=value DSN. Sessions run in UTC so stored
// notification timestamps compare the same way on every driver.
func buildPostgresDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	host, port, err := endpoint("postgres", cfg, "localhost", 5432)
	if err != nil {
		return "", err
	}

	params := []string{
		"host=" + host,
		fmt.Sprintf("port=%d", port),
		"user=" + cfg.User,
		"dbname=" + cfg.Name,
	}
	if cfg.Password != "" {
		params = append(params, "password="+cfg.Password)
	}

	opts := withDefaults(cfg.Options, map[string]string{
		"sslmode":  "disable",
		"TimeZone": "UTC",
	})
	for _, key := range sortedKeys(opts) {
		params = append(params, key+"="+opts[key])
	}
	return strings.Join(params, " "), nil
}

// buildMySQLDSN renders a go-sql-driver DSN with parseTime and UTC location.
func buildMySQLDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	host, port, err := endpoint("mysql", cfg, "127.0.0.1", 3306)
	if err != nil {
		return "", err
	}

	user := cfg.User
	if cfg.Password != "" {
		user += ":" + cfg.Password
	}

	opts := withDefaults(cfg.Options, map[string]string{
		"charset":   "utf8mb4",
		"parseTime": "True",
		"loc":       "UTC",
	})
	query := make([]string, 0, len(opts))
	for _, key := range sortedKeys(opts) {
		query = append(query, key+"="+opts[key])
	}
	return fmt.Sprintf("%s@tcp(%s:%d)/%s?%s", user, host, port, cfg.Name, strings.Join(query, "&")), nil
}

func endpoint(driver string, cfg Config, defaultHost string, defaultPort int) (string, int, error) {
	if cfg.User == "" || cfg.Name == "" {
		return "", 0, errors.New(driver + " configuration requires user and database name")
	}
	host, port := cfg.Host, cfg.Port
	if host == "" {
		host = defaultHost
	}
	if port == 0 {
		port = defaultPort
	}
	return host, port, nil
}

// withDefaults overlays user options on the driver defaults.
func withDefaults(user, defaults map[string]string) map[string]string {
	out := make(map[string]string, len(defaults)+len(user))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range user {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
