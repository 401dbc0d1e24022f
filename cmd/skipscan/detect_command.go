package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"skipscan/internal/config"
	"skipscan/internal/detect"
	"skipscan/internal/fpcache"
	"skipscan/internal/skipdata"
)

func newDetectCommand(ctx *commandContext) *cobra.Command {
	var (
		showType    string
		force       bool
		recursive   bool
		outputPath  string
		useFullPath bool
		noGraph     bool
		threshold   float64
		minAgree    int
		noWriteData bool
	)

	cmd := &cobra.Command{
		Use:   "detect <directory|files...>",
		Short: "Detect intro and outro segments for an episode set",
		Long: `Detect analyzes the audio of every episode in a set, finds the segment
the episodes share, and writes the per-episode timestamps to the cache
and to the skip data file playback scripts read.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			paths, err := resolveEpisodeArgs(args, recursive)
			if err != nil {
				return err
			}
			if len(paths) < 2 {
				return fmt.Errorf("detect needs at least two episodes, found %d", len(paths))
			}
			skipdata.WarnOnMixedSet(paths, log)

			if showType == "" {
				showType = cfg.Detection.ShowType
			}
			overrides := config.Overrides{}
			if noGraph {
				disabled := false
				overrides.UseGraphConsensus = &disabled
			}
			if threshold > 0 {
				overrides.SimilarityThreshold = &threshold
			}
			if minAgree > 0 {
				overrides.MinEpisodesAgree = &minAgree
			}
			profile, err := config.ProfileFor(showType, overrides)
			if err != nil {
				return err
			}

			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			runCtx, cancel := ctx.signalContext(cmd.Context())
			defer cancel()

			detector := detect.New(cfg, profile, store, ctx.runner(), log)
			report, err := detector.Run(runCtx, paths, force)
			if err != nil {
				return err
			}

			if !noWriteData {
				if outputPath == "" {
					outputPath = filepath.Join(cfg.Paths.DataDir, "skip_data.json")
				}
				results := make(skipdata.Results, len(report.Segments))
				for path, segs := range report.Segments {
					spans := make(map[fpcache.SegmentType]skipdata.Span, len(segs))
					for st, span := range segs {
						spans[st] = skipdata.Span{Start: span.Start, End: span.End}
					}
					results[path] = spans
				}
				if err := skipdata.Write(outputPath, results, useFullPath, log); err != nil {
					return err
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderReport(report))
			return nil
		},
	}

	cmd.Flags().StringVar(&showType, "show-type", "", "Detection profile (standard, anime, sitcom, ...)")
	cmd.Flags().BoolVar(&force, "force", false, "Re-detect even when cached segments exist")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Recurse into subdirectories when a directory is given")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Skip data file location (default <data_dir>/skip_data.json)")
	cmd.Flags().BoolVar(&useFullPath, "full-path", false, "Key skip data entries by absolute path instead of normalized name")
	cmd.Flags().BoolVar(&noGraph, "no-graph", false, "Disable graph consensus, use pairwise comparison only")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Override the profile similarity threshold")
	cmd.Flags().IntVar(&minAgree, "min-agree", 0, "Override how many episodes must agree on a window")
	cmd.Flags().BoolVar(&noWriteData, "no-skip-data", false, "Skip writing the skip data file")
	return cmd
}

// resolveEpisodeArgs turns CLI args into a sorted episode path list. A
// single directory argument is expanded to its video files.
func resolveEpisodeArgs(args []string, recursive bool) ([]string, error) {
	if len(args) == 1 {
		expanded, err := config.ExpandPath(args[0])
		if err != nil {
			return nil, err
		}
		if info, statErr := os.Stat(expanded); statErr == nil && info.IsDir() {
			if recursive {
				return skipdata.CollectVideos(expanded), nil
			}
			return skipdata.ListVideos(expanded)
		}
	}
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		expanded, err := config.ExpandPath(arg)
		if err != nil {
			return nil, err
		}
		if !skipdata.IsVideo(expanded) {
			return nil, fmt.Errorf("%s is not a recognized video file", arg)
		}
		paths = append(paths, expanded)
	}
	sort.Strings(paths)
	return paths, nil
}

func renderReport(report *detect.Report) string {
	paths := make([]string, 0, len(report.Segments))
	for p := range report.Segments {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	rows := make([][]string, 0, len(paths))
	for _, path := range paths {
		segs := report.Segments[path]
		rows = append(rows, []string{
			filepath.Base(path),
			formatSpan(segs, fpcache.SegmentIntro),
			formatSpan(segs, fpcache.SegmentOutro),
			formatClock(report.Durations[path]),
		})
	}
	if len(rows) == 0 {
		return "No segments detected."
	}
	return renderTable(
		[]string{"Episode", "Intro", "Outro", "Duration"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
	)
}

func formatSpan(segs map[fpcache.SegmentType]detect.Span, st fpcache.SegmentType) string {
	span, ok := segs[st]
	if !ok {
		return "-"
	}
	return formatClock(span.Start) + " - " + formatClock(span.End)
}

// formatClock renders seconds as m:ss or h:mm:ss.
func formatClock(seconds float64) string {
	if seconds < 0 {
		return "-" + formatClock(-seconds)
	}
	total := int(seconds)
	if total < 3600 {
		return fmt.Sprintf("%d:%02d", total/60, total%60)
	}
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
