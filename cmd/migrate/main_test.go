package main

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

func lookupFrom(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func testPostgresDSN(t *testing.T) string {
	t.Helper()

	candidates := []string{
		strings.TrimSpace(os.Getenv("STOREFRONT_POSTGRES_TEST_DSN")),
		strings.TrimSpace(os.Getenv(envPostgresDSN)),
	}
	for _, dsn := range candidates {
		if dsn == "" {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		store, err := postgres.Open(ctx, dsn)
		cancel()
		if err != nil {
			continue
		}
		_ = store.Close()
		return dsn
	}

	t.Skip("postgres dsn is not available")
	return ""
}

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		env     map[string]string
		want    options
		wantErr string
	}{
		{
			name: "defaults to up with env dsn",
			env:  map[string]string{envPostgresDSN: " postgres://env "},
			want: options{direction: "up", dsn: "postgres://env"},
		},
		{
			name: "flag dsn wins over env",
			args: []string{"-direction=STATUS", "-dsn=postgres://flag"},
			env:  map[string]string{envPostgresDSN: "postgres://env"},
			want: options{direction: "status", dsn: "postgres://flag"},
		},
		{
			name: "down defaults to one step",
			args: []string{"-direction=down", "-dsn=postgres://flag"},
			want: options{direction: "down", steps: 1, dsn: "postgres://flag"},
		},
		{
			name:    "missing dsn",
			args:    []string{"-direction=status"},
			wantErr: "is required",
		},
		{
			name:    "unsupported direction",
			args:    []string{"-direction=sideways", "-dsn=postgres://flag"},
			wantErr: "unsupported direction",
		},
		{
			name:    "negative steps",
			args:    []string{"-steps=-2", "-dsn=postgres://flag"},
			wantErr: "steps must be",
		},
		{
			name:    "unknown flag",
			args:    []string{"-verbose"},
			wantErr: "flag provided but not defined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOptions(tt.args, lookupFrom(tt.env))
			if tt.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRunMigrationPaths(t *testing.T) {
	dsn := testPostgresDSN(t)
	ctx := context.Background()

	for _, direction := range []string{"status", "up", "list", "down", "up"} {
		var out bytes.Buffer
		opts, err := parseOptions([]string{"-direction=" + direction, "-dsn=" + dsn}, nil)
		require.NoError(t, err)
		require.NoError(t, run(ctx, opts, &out), direction)
		require.NotEmpty(t, out.String(), direction)
	}
}

func TestFailExits(t *testing.T) {
	if os.Getenv("MIGRATE_TEST_FAIL_EXIT") == "1" {
		fail("forced failure %d", 42)
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "MIGRATE_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with error")
	}
	if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}
