package cli

import (
	"fmt"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/majorcontext/jobdock/internal/system"
)

var cleanTempCmd = &cobra.Command{
	Use:   "clean-temp",
	Short: "Remove scoped docker config directories left by interrupted builds",
	Long: `Scan the temp directory for scoped docker config directories that builds
create to hold registry credentials. They are removed when a build ends, but an
agent that is killed mid-build leaves them behind, credentials included.

Only directories older than --min-age (default: 1 hour) are removed.`,
	Args: cobra.NoArgs,
	RunE: runCleanTemp,
}

var (
	cleanTempMinAge time.Duration
	cleanTempDryRun bool
	cleanTempDir    string
)

func init() {
	rootCmd.AddCommand(cleanTempCmd)
	cleanTempCmd.Flags().DurationVar(&cleanTempMinAge, "min-age", time.Hour, "minimum age of directories to remove")
	cleanTempCmd.Flags().BoolVar(&cleanTempDryRun, "dry-run", false, "list directories without removing them")
	cleanTempCmd.Flags().StringVar(&cleanTempDir, "temp-dir", "", "directory to scan (default: system temp dir)")
}

func runCleanTemp(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	orphaned, err := system.FindOrphanedTempDirs(cleanTempDir, cleanTempMinAge)
	if err != nil {
		return fmt.Errorf("scanning for orphaned temp directories: %w", err)
	}
	if len(orphaned) == 0 {
		fmt.Fprintln(out, "No orphaned temporary directories found.")
		return nil
	}

	var total int64
	for _, d := range orphaned {
		total += d.Size
		fmt.Fprintf(out, "  %s\n    %s, %s old, %s\n", d.Path, d.Description,
			units.HumanDuration(time.Since(d.ModTime)), d.HumanSize())
	}
	fmt.Fprintf(out, "Total size: %s\n", units.HumanSize(float64(total)))

	if cleanTempDryRun {
		fmt.Fprintln(out, "Dry run mode - nothing was removed.")
		return nil
	}
	removed, err := system.CleanOrphanedTempDirs(orphaned, cleanTempMinAge)
	fmt.Fprintf(out, "Removed %d of %d directories.\n", len(removed), len(orphaned))
	return err
}
