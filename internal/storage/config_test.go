package storage

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	config := Config{
		User:     "a",
		Password: "b",
		Host:     "c",
		Port:     5432,
		DBName:   "d",
	}
	expected := "user=a host=c port=5432 dbname=d sslmode=disable password=b"
	actual := config.DSN()
	require.Equal(t, expected, actual)
}

func TestDSN_SSLMode(t *testing.T) {
	config := Config{User: "a", Password: "b", Host: "c", Port: 6432, DBName: "d", SSLMode: "require"}
	require.Equal(t, "user=a host=c port=6432 dbname=d sslmode=require password=b", config.DSN())
}

func TestDSN_NoPassword(t *testing.T) {
	config := Config{User: "a", Host: "c", Port: 5432, DBName: "d"}
	require.Equal(t, "user=a host=c port=5432 dbname=d sslmode=disable", config.DSN())
}

func TestOptions(t *testing.T) {
	config, err := pgxpool.ParseConfig(Config{User: "a", Host: "c", Port: 5432, DBName: "d"}.DSN())
	require.NoError(t, err)

	for _, opt := range []Option{ConnectionTimeout(3 * time.Second), MaxConns(7)} {
		opt.apply(config)
	}

	require.Equal(t, 3*time.Second, config.ConnConfig.ConnectTimeout)
	require.Equal(t, int32(7), config.MaxConns)
}
