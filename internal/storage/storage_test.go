package storage

import (
	"testing"

	"github.com/BearBump/ShipBox/config"
	"github.com/BearBump/ShipBox/internal/storage/memshipment"
	"github.com/stretchr/testify/require"
)

func TestOpen_Memory(t *testing.T) {
	st, closeFn, err := Open(&config.Config{ShipBox: config.ShipBoxConfig{StorageDriver: " Memory "}}, 0)
	require.NoError(t, err)
	defer closeFn()
	_, ok := st.(*memshipment.Store)
	require.True(t, ok)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, _, err := Open(&config.Config{ShipBox: config.ShipBoxConfig{StorageDriver: "mongo"}}, 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "mongo")
}

func TestOpen_PostgresBadConnString(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{Host: "bad host", Port: -1}}
	_, _, err := Open(cfg, 0)
	require.Error(t, err)
}
