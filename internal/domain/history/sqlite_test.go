package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testSQLiteStore(t *testing.T, maxEntries int) Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "history.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	store, err := NewSQLite(db, Config{MaxEntries: maxEntries})
	if err != nil {
		t.Fatalf("NewSQLite error: %v", err)
	}
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	})
	return store
}

func TestSQLiteAppendAndRecent(t *testing.T) {
	ctx := context.Background()
	store := testSQLiteStore(t, 20)

	for i := 0; i < 4; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		if err := store.Append(ctx, "s1", Entry{Role: role, Text: fmt.Sprintf("第%d句", i)}); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}

	entries, err := store.Recent(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("Recent error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("limit=2应返回2条，实际 %d", len(entries))
	}
	if entries[0].Text != "第2句" || entries[1].Text != "第3句" {
		t.Fatalf("应返回最近的且按时间先后: %+v", entries)
	}
}

func TestSQLitePrunesOldEntries(t *testing.T) {
	ctx := context.Background()
	store := testSQLiteStore(t, 3)

	for i := 0; i < 7; i++ {
		if err := store.Append(ctx, "s1", Entry{Role: "user", Text: fmt.Sprintf("第%d句", i)}); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}

	entries, err := store.Recent(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("Recent error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("应只保留最近3条，实际 %d", len(entries))
	}
	if entries[0].Text != "第4句" {
		t.Fatalf("最旧一条应为第4句: %s", entries[0].Text)
	}
}

func TestSQLiteClearScopedToSession(t *testing.T) {
	ctx := context.Background()
	store := testSQLiteStore(t, 20)

	_ = store.Append(ctx, "s1", Entry{Role: "user", Text: "a"})
	_ = store.Append(ctx, "s2", Entry{Role: "user", Text: "b"})

	if err := store.Clear(ctx, "s1"); err != nil {
		t.Fatalf("Clear error: %v", err)
	}

	entries, _ := store.Recent(ctx, "s1", 0)
	if len(entries) != 0 {
		t.Fatalf("s1应被清空: %+v", entries)
	}
	entries, _ = store.Recent(ctx, "s2", 0)
	if len(entries) != 1 {
		t.Fatalf("s2不应受影响: %+v", entries)
	}
}
