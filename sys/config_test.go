package sys

import (
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_INT_BAD", "forty-two")
	t.Setenv("TEST_BOOL", "false")

	if got := envInt("TEST_INT", 7); got != 42 {
		t.Errorf("envInt = %d, want 42", got)
	}
	if got := envInt("TEST_INT_BAD", 7); got != 7 {
		t.Errorf("envInt with bad value = %d, want fallback 7", got)
	}
	if got := envInt("TEST_INT_UNSET", 7); got != 7 {
		t.Errorf("envInt unset = %d, want fallback 7", got)
	}
	if got := envBool("TEST_BOOL", true); got {
		t.Error("envBool = true, want false")
	}
	if got := envBool("TEST_BOOL_UNSET", true); !got {
		t.Error("envBool unset = false, want fallback true")
	}
}

func TestConfigValidate(t *testing.T) {
	base := Config{
		Token:            "token",
		MaxQueueLength:   50,
		DefaultVolume:    50,
		MaxTrackDuration: 2 * time.Hour,
	}

	if err := base.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	noToken := base
	noToken.Token = ""
	if err := noToken.Validate(); err == nil {
		t.Error("missing token accepted")
	}

	badGuild := base
	badGuild.GuildID = "123"
	if err := badGuild.Validate(); err == nil {
		t.Error("short guild ID accepted")
	}

	badQueue := base
	badQueue.MaxQueueLength = 0
	if err := badQueue.Validate(); err == nil {
		t.Error("zero queue length accepted")
	}

	badVolume := base
	badVolume.DefaultVolume = 500
	if err := badVolume.Validate(); err == nil {
		t.Error("out-of-range default volume accepted")
	}
}
