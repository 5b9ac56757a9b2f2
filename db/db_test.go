package db

import (
	"path/filepath"
	"strings"
	"testing"

	"AzzKaraoke/config"
	"AzzKaraoke/model"
)

func TestMySQLDSN(t *testing.T) {
	cfg := config.Default()
	cfg.DBUser = "karaoke"
	cfg.DBPassword = "p@ss"
	cfg.DBHost = "db.local"
	cfg.DBPort = "3307"
	cfg.DBName = "azz"

	dsn := MySQLDSN(cfg, true)
	for _, want := range []string{"karaoke:p@ss@tcp(db.local:3307)/azz", "parseTime=true", "charset=utf8mb4"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}
	if noDB := MySQLDSN(cfg, false); strings.Contains(noDB, "/azz") {
		t.Errorf("dsn without database still selects one: %q", noDB)
	}
}

func TestConnectSQLiteMigrates(t *testing.T) {
	cfg := config.Default()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "nested", "azz.db")

	gdb, err := ConnectGormDB(cfg)
	if err != nil {
		t.Fatalf("ConnectGormDB: %v", err)
	}
	t.Cleanup(func() { _ = CloseGormDB(gdb) })

	if !gdb.Migrator().HasTable(&model.KaraokeSession{}) {
		t.Fatal("karaoke_sessions table was not created")
	}
}

func TestConnectRejectsNone(t *testing.T) {
	cfg := config.Default()
	cfg.DBDriver = "none"
	if _, err := ConnectGormDB(cfg); err == nil {
		t.Fatal("expected error for driver none")
	}
}

func TestEnsureMySQLDatabaseRejectsBadName(t *testing.T) {
	cfg := config.Default()
	cfg.DBName = "x`; DROP"
	if err := EnsureMySQLDatabase(cfg); err == nil {
		t.Fatal("expected invalid name error")
	}
}
