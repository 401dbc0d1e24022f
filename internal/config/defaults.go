package config

import (
	"os"
	"path/filepath"
)

// Default returns the baseline configuration used before a config file is applied.
func Default() Config {
	dataDir := defaultDataDir()
	return Config{
		Paths: Paths{
			DataDir: dataDir,
			LogDir:  filepath.Join(dataDir, "logs"),
		},
		Detection: Detection{
			ShowType:           "standard",
			ParallelExtraction: true,
			ExtractionWorkers:  4,
			FFmpegTimeout:      300,
			FFprobeTimeout:     60,
			MaxFingerprintMB:   512,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}

func defaultDataDir() string {
	if base, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && base != "" {
		return filepath.Join(base, "skipscan")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.config/skipscan"
	}
	return filepath.Join(home, ".config", "skipscan")
}
