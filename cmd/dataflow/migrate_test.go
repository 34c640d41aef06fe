package main

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMigrateArgs(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		action     string
		positional []string
		dbType     string
		dbURL      string
	}{
		{name: "up with flags", args: []string{"up", "--db-type", "postgres", "--db-url", "postgres://x"}, action: "up", dbType: "postgres", dbURL: "postgres://x"},
		{name: "negative steps", args: []string{"steps", "-1", "--db-type", "sqlite"}, action: "steps", positional: []string{"-1"}, dbType: "sqlite"},
		{name: "force", args: []string{"force", "3"}, action: "force", positional: []string{"3"}},
		{name: "status", args: []string{"status", "--config", "dataflow.yaml"}, action: "status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMigrateArgs(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.action, got.action)
			assert.Equal(t, tt.positional, got.positional)
			assert.Equal(t, tt.dbType, got.dbType)
			assert.Equal(t, tt.dbURL, got.dbURL)
		})
	}

	_, err := parseMigrateArgs(nil)
	assert.Error(t, err)
}

func TestRunMigrate_Errors(t *testing.T) {
	ctx := context.Background()
	configPath := writeConfig(t, t.TempDir())

	// file store has no SQL schema
	err := runMigrate(ctx, []string{"up", "--config", configPath}, io.Discard)
	assert.Error(t, err)

	err = runMigrate(ctx, []string{"up", "--config", configPath, "--db-type", "oracle", "--db-url", "x"}, io.Discard)
	assert.Error(t, err)
}
