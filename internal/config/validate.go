package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDetection(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	return nil
}

func (c *Config) validateDetection() error {
	if _, ok := showProfiles[c.Detection.ShowType]; !ok {
		return fmt.Errorf("detection.show_type: unknown show type %q", c.Detection.ShowType)
	}
	if c.Detection.ExtractionWorkers < 1 {
		return errors.New("detection.extraction_workers must be at least 1")
	}
	if c.Detection.FFmpegTimeout <= 0 {
		return errors.New("detection.ffmpeg_timeout must be positive")
	}
	if c.Detection.FFprobeTimeout <= 0 {
		return errors.New("detection.ffprobe_timeout must be positive")
	}
	if c.Detection.MaxFingerprintMB <= 0 {
		return errors.New("detection.max_fingerprint_mb must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
