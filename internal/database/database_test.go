package database

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"cryptopulse/config"
	"cryptopulse/internal/models"
)

func TestGormLoggingSkipsRecordNotFound(t *testing.T) {
	var buf bytes.Buffer
	db, err := NewDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          "file:" + t.Name() + "?mode=memory&cache=shared",
		MaxIdleConns: 1,
		MaxOpenConns: 1,
	}, zerolog.New(&buf))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	buf.Reset()

	var rule models.NotificationRule
	if err := db.Where("id = ?", "missing").First(&rule).Error; !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("first = %v, want record not found", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("record miss was logged: %s", buf.String())
	}

	if err := db.Exec("SELECT * FROM no_such_table").Error; err == nil {
		t.Fatal("query on a missing table succeeded")
	}
	out := buf.String()
	if !strings.Contains(out, `"component":"gorm"`) || !strings.Contains(out, "no_such_table") {
		t.Fatalf("query error not logged through zerolog: %q", out)
	}
}
