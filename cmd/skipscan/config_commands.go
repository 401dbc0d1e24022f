package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"skipscan/internal/config"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand())
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	var configFlag string

	cmd := &cobra.Command{
		Use:         "show",
		Short:       "Show the resolved configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(strings.TrimSpace(configFlag))
			if err != nil {
				return err
			}

			source := path
			if !exists {
				source = "(defaults, no file found)"
			}
			out := renderTable(
				[]string{"Setting", "Value"},
				[][]string{
					{"Config source", source},
					{"Data directory", cfg.Paths.DataDir},
					{"Log directory", cfg.Paths.LogDir},
					{"Cache database", cfg.CachePath()},
					{"ffmpeg", cfg.FFmpegBinary()},
					{"ffprobe", cfg.FFprobeBinary()},
					{"Show type", cfg.Detection.ShowType},
					{"Parallel extraction", fmt.Sprintf("%t", cfg.Detection.ParallelExtraction)},
					{"Extraction workers", fmt.Sprintf("%d", cfg.Detection.ExtractionWorkers)},
					{"ffmpeg timeout (s)", fmt.Sprintf("%d", cfg.Detection.FFmpegTimeout)},
					{"ffprobe timeout (s)", fmt.Sprintf("%d", cfg.Detection.FFprobeTimeout)},
					{"Fingerprint budget (MB)", fmt.Sprintf("%d", cfg.Detection.MaxFingerprintMB)},
					{"Log format", cfg.Logging.Format},
					{"Log level", cfg.Logging.Level},
				},
				[]columnAlignment{alignLeft, alignLeft},
			)
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	return cmd
}

func newShowTypesCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "show-types",
		Short:       "List the available detection profiles",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0)
			for _, name := range config.ShowTypes() {
				p, err := config.ProfileFor(name, config.Overrides{})
				if err != nil {
					return err
				}
				rows = append(rows, []string{
					name,
					fmt.Sprintf("%g-%gs", p.IntroSearchStart, p.IntroSearchEnd),
					fmt.Sprintf("%gs", p.OutroSearchDuration),
					fmt.Sprintf("%g-%gs", p.MinSegmentDuration, p.MaxSegmentDuration),
					fmt.Sprintf("%.2f", p.SimilarityThreshold),
				})
			}
			out := renderTable(
				[]string{"Profile", "Intro search", "Outro search", "Segment length", "Threshold"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
			)
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}
