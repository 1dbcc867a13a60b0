package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildPostgresDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{User: "runmate", Name: "runmate"})
	require.NoError(t, err)
	require.Equal(t, "host=localhost port=5432 user=runmate dbname=runmate TimeZone=UTC sslmode=disable", dsn)

	dsn, err = buildPostgresDSN(Config{
		User:     "app",
		Name:     "notifications",
		Host:     "db.example.com",
		Port:     6543,
		Password: "pass",
		Options:  map[string]string{"sslmode": "require"},
	})
	require.NoError(t, err)
	require.Equal(t, "host=db.example.com port=6543 user=app dbname=notifications password=pass TimeZone=UTC sslmode=require", dsn)
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{User: "runmate", Name: "runmate"})
	require.NoError(t, err)
	require.Equal(t, "runmate@tcp(127.0.0.1:3306)/runmate?charset=utf8mb4&loc=UTC&parseTime=True", dsn)

	dsn, err = buildMySQLDSN(Config{
		User:     "app",
		Password: "secret",
		Name:     "notifications",
		Host:     "mysql",
		Port:     3307,
		Options:  map[string]string{"tls": "skip-verify"},
	})
	require.NoError(t, err)
	require.Equal(t, "app:secret@tcp(mysql:3307)/notifications?charset=utf8mb4&loc=UTC&parseTime=True&tls=skip-verify", dsn)
}

func TestBuildDSNRequiresUserAndName(t *testing.T) {
	_, err := buildPostgresDSN(Config{})
	require.EqualError(t, err, "postgres configuration requires user and database name")

	_, err = buildMySQLDSN(Config{Host: "localhost", User: "app"})
	require.EqualError(t, err, "mysql configuration requires user and database name")
}

func TestExplicitDSNWins(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{DSN: "postgres://x"})
	require.NoError(t, err)
	require.Equal(t, "postgres://x", dsn)
}
