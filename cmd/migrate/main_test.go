package main

import (
	"io/fs"
	"strings"
	"testing"

	appmigrations "github.com/wolfman30/lead-pipeline/migrations"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		args    []string
		command string
		n       int
		wantErr bool
	}{
		{args: nil, command: "up"},
		{args: []string{"up"}, command: "up"},
		{args: []string{"version"}, command: "version"},
		{args: []string{"force", "3"}, command: "force", n: 3},
		{args: []string{"down", "1"}, command: "down", n: 1},
		{args: []string{"down"}, wantErr: true},
		{args: []string{"down", "0"}, wantErr: true},
		{args: []string{"force", "x"}, wantErr: true},
		{args: []string{"sideways"}, wantErr: true},
	}
	for _, tt := range tests {
		command, n, err := parseArgs(tt.args)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("%v: expected error", tt.args)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%v: unexpected error: %v", tt.args, err)
		}
		if command != tt.command || n != tt.n {
			t.Fatalf("%v: got %s %d", tt.args, command, n)
		}
	}
}

func TestRunRequiresDatabaseURL(t *testing.T) {
	if err := run("", nil, logging.New("error")); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(appmigrations.FS, ".")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	if len(ups) == 0 {
		t.Fatalf("expected embedded migrations")
	}
	for name := range ups {
		if !downs[name] {
			t.Fatalf("migration %s has no down file", name)
		}
	}
}
