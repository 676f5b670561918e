package main

import (
	"net"
	"testing"

	"github.com/rbroggi/slotcast/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargets(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.Config
		args     []string
		emulator string
		want     []string
	}{
		{
			name: "mongo replica set and emulator",
			cfg: config.Config{
				StorageDriver: config.StorageMongo,
				MongoURL:      "mongodb://u:p@m1:27017,m2/slotcast?replicaSet=rs0",
			},
			emulator: "localhost:8085",
			want:     []string{"m1:27017", "m2:27017", "localhost:8085"},
		},
		{
			name: "postgres default port",
			cfg: config.Config{
				StorageDriver: config.StoragePostgres,
				PostgresURL:   "postgres://postgres:postgres@db/postgres?sslmode=disable",
			},
			want: []string{"db:5432"},
		},
		{
			name: "memory storage waits for nothing",
			cfg:  config.Config{StorageDriver: config.StorageMemory},
			want: nil,
		},
		{
			name: "explicit arguments win",
			cfg:  config.Config{StorageDriver: config.StorageMongo, MongoURL: "mongodb://m1"},
			args: []string{"other:1"},
			want: []string{"other:1"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := targets(&test.cfg, test.args, test.emulator)
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}
}

func TestTargets_InvalidURL(t *testing.T) {
	_, err := targets(&config.Config{StorageDriver: config.StoragePostgres, PostgresURL: "no-host"}, nil, "")
	assert.Error(t, err)
}

func TestWaitFor(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	assert.NoError(t, waitFor(lis.Addr().String()))
}
