package db

import (
	"path/filepath"
	"testing"
)

func TestOpenSetsForeignKeys(t *testing.T) {
	database, err := Open(filepath.Join(t.TempDir(), "fk.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer database.Close()

	var on int
	if err := database.QueryRow(`PRAGMA foreign_keys`).Scan(&on); err != nil {
		t.Fatalf("read pragma: %v", err)
	}
	if on != 1 {
		t.Fatalf("foreign_keys = %d, want 1", on)
	}
}

func TestOpenMemoryUsesOneConnection(t *testing.T) {
	database, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer database.Close()

	if _, err := database.Exec(`CREATE TABLE t (id INTEGER)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := database.Exec(`INSERT INTO t (id) VALUES (1)`); err != nil {
		t.Fatalf("insert into table created on another call: %v", err)
	}
	if got := database.Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("max open conns = %d, want 1", got)
	}
}

func TestWithParams(t *testing.T) {
	cases := map[string]string{
		"/tmp/a.db":                            "/tmp/a.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate",
		"/tmp/a.db?_pragma=foo(1)":             "/tmp/a.db?_pragma=foo(1)&_txlock=immediate",
		"/tmp/a.db?_txlock=exclusive":          "/tmp/a.db?_txlock=exclusive&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		"file:a.db?_pragma=x&_txlock=deferred": "file:a.db?_pragma=x&_txlock=deferred",
	}
	for in, want := range cases {
		if got := withParams(in); got != want {
			t.Fatalf("withParams(%q) = %q, want %q", in, got, want)
		}
	}
}
