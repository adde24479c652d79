package sys

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/disgoorg/snowflake/v2"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	if err := InitDatabase(context.Background(), dbPath); err != nil {
		t.Fatalf("InitDatabase failed: %v", err)
	}
	t.Cleanup(CloseDatabase)
}

func TestBotConfigRoundtrip(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()

	if v, err := GetBotConfig(ctx, "missing"); err != nil || v != "" {
		t.Errorf("GetBotConfig(missing) = %q, %v; want empty, nil", v, err)
	}

	if err := SetBotConfig(ctx, "status_visible", "true"); err != nil {
		t.Fatalf("SetBotConfig failed: %v", err)
	}
	if v, _ := GetBotConfig(ctx, "status_visible"); v != "true" {
		t.Errorf("GetBotConfig = %q, want %q", v, "true")
	}

	// Upsert overwrites.
	if err := SetBotConfig(ctx, "status_visible", "false"); err != nil {
		t.Fatalf("SetBotConfig overwrite failed: %v", err)
	}
	if v, _ := GetBotConfig(ctx, "status_visible"); v != "false" {
		t.Errorf("GetBotConfig after overwrite = %q, want %q", v, "false")
	}
}

func TestPlayerSettingsRoundtrip(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	guildID := snowflake.ID(123456789012345678)

	if s, err := GetPlayerSettings(ctx, guildID); err != nil || s != nil {
		t.Errorf("GetPlayerSettings before save = %v, %v; want nil, nil", s, err)
	}

	if err := SetPlayerVolume(ctx, guildID, 120); err != nil {
		t.Fatalf("SetPlayerVolume failed: %v", err)
	}
	if err := SetPlayerLoop(ctx, guildID, true); err != nil {
		t.Fatalf("SetPlayerLoop failed: %v", err)
	}

	s, err := GetPlayerSettings(ctx, guildID)
	if err != nil {
		t.Fatalf("GetPlayerSettings failed: %v", err)
	}
	if s == nil {
		t.Fatal("GetPlayerSettings returned nil after save")
	}
	if s.Volume != 120 {
		t.Errorf("Volume = %d, want 120", s.Volume)
	}
	if !s.Loop {
		t.Error("Loop = false, want true")
	}

	if err := SetPlayerLoop(ctx, guildID, false); err != nil {
		t.Fatalf("SetPlayerLoop(false) failed: %v", err)
	}
	s, _ = GetPlayerSettings(ctx, guildID)
	if s.Loop {
		t.Error("Loop should be false after disabling")
	}
	if s.Volume != 120 {
		t.Errorf("Volume changed by loop update: %d", s.Volume)
	}
}
