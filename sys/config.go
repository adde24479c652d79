package sys

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// --- Configuration & Environment ---

type Config struct {
	Token        string
	GuildID      string
	DatabasePath string
	OwnerIDs     []string
	StreamingURL string
	Silent       bool

	// Playback
	MaxQueueLength    int
	MaxPlaylistLength int
	MaxTrackDuration  time.Duration
	AllowPlaylists    bool
	IdleTimeout       time.Duration
	ConnectTimeout    time.Duration
	DefaultVolume     int
	QueueDisplayLimit int
}

const (
	VolumeMin = 0
	VolumeMax = 200
)

var GlobalConfig *Config

// LoadConfig initializes the configuration from environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	token := os.Getenv("DISCORD_TOKEN")
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		folder := "."
		if info, err := os.Stat("data"); err == nil && info.IsDir() {
			folder = "./data"
		}
		dbPath = filepath.Join(folder, GetProjectName()+".db")
	}

	silent, _ := strconv.ParseBool(os.Getenv("SILENT"))
	streamingURL := os.Getenv("STREAMING_URL")
	if streamingURL == "" {
		streamingURL = "https://www.twitch.tv/videos/1110069047"
	}

	ownerIDsStr := os.Getenv("OWNER_IDS")
	var ownerIDs []string
	if ownerIDsStr != "" {
		ownerIDs = strings.Split(ownerIDsStr, ",")
		for i := range ownerIDs {
			ownerIDs[i] = strings.TrimSpace(ownerIDs[i])
		}
	}

	cfg := &Config{
		Token:        token,
		GuildID:      os.Getenv("GUILD_ID"),
		DatabasePath: dbPath,
		OwnerIDs:     ownerIDs,
		StreamingURL: streamingURL,
		Silent:       silent,

		MaxQueueLength:    envInt("MUSIC_MAX_QUEUE_LENGTH", 50),
		MaxPlaylistLength: envInt("MUSIC_MAX_PLAYLIST_LENGTH", 50),
		MaxTrackDuration:  time.Duration(envInt("MUSIC_MAX_TRACK_SECONDS", 7200)) * time.Second,
		AllowPlaylists:    envBool("MUSIC_ALLOW_PLAYLISTS", true),
		IdleTimeout:       time.Duration(envInt("MUSIC_IDLE_TIMEOUT_SECONDS", 300)) * time.Second,
		ConnectTimeout:    time.Duration(envInt("MUSIC_CONNECT_TIMEOUT_SECONDS", 15)) * time.Second,
		DefaultVolume:     envInt("MUSIC_DEFAULT_VOLUME", 50),
		QueueDisplayLimit: envInt("MUSIC_QUEUE_DISPLAY_LIMIT", 10),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Silent {
		SetSilentMode(true)
	}

	GlobalConfig = cfg
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf("invalid GUILD_ID: must be a valid Snowflake")
	}
	if c.MaxQueueLength < 1 {
		return fmt.Errorf("MUSIC_MAX_QUEUE_LENGTH must be at least 1")
	}
	if c.DefaultVolume < VolumeMin || c.DefaultVolume > VolumeMax {
		return fmt.Errorf("MUSIC_DEFAULT_VOLUME must be between %d and %d", VolumeMin, VolumeMax)
	}
	return nil
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "hibiki"
	if err == nil {
		projectName = filepath.Base(exePath)
		projectName = strings.TrimSuffix(projectName, ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") {
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}
