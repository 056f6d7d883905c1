package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/codelynx/photolala/internal/app"
	"github.com/codelynx/photolala/internal/config"
	"github.com/codelynx/photolala/internal/photolala"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a PhotoApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Star", "Sync").
func newApp(operation string) (*app.PhotoApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewPhotoApp(rootCmd.Context(), cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// confirm prompts for a yes/no answer on the terminal. Returns false when
// stdin is not a terminal, so scripted runs never hang on a prompt.
func confirm(prompt string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "stdin is not a terminal; refusing without confirmation (re-run interactively)")
		return false
	}
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

var rootCmd = &cobra.Command{
	Use:   "photolala",
	Short: "Content-addressed photo catalog and tiered cloud backup",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		deviceID := uuid.New().String()

		cfg := config.NewConfig(deviceID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Device ID: %s\n", deviceID)
		fmt.Printf("Base Dir:  %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Device ID:    %s\n", cfg.DeviceID)
		fmt.Printf("Catalog Root: %s\n", cfg.CatalogRoot)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Store:        %s\n", cfg.Store.Type)
		fmt.Printf("Cache Dir:    %s\n", cfg.Cache.Dir)
		return nil
	},
}

// star command
var starCmd = &cobra.Command{
	Use:   "star [PATH]",
	Short: "Star photos for backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, _ := cmd.Flags().GetBool("recursive")

		a, err := newApp("Star")
		if err != nil {
			return err
		}
		defer a.Close()

		target := "."
		if len(args) > 0 {
			target = args[0]
		}

		count, err := a.StarPath(cmd.Context(), target, recursive)
		if err != nil {
			return fmt.Errorf("starring: %w", err)
		}

		fmt.Printf("Starred %d photo(s)\n", count)
		return nil
	},
}

// unstar command
var unstarCmd = &cobra.Command{
	Use:   "unstar HASH",
	Short: "Remove a photo from the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Unstar")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Unstar(cmd.Context(), args[0]); err != nil {
			return err
		}

		fmt.Printf("Unstarred %s\n", args[0])
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload starred photos",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Backup")
		if err != nil {
			return err
		}
		defer a.Close()

		uploaded, failed, err := a.BackupAll(cmd.Context())
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("Uploaded %d photo(s), %d failed\n", uploaded, failed)
		if failed > 0 {
			return fmt.Errorf("%d photo(s) failed to upload", failed)
		}
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the catalog with the remote",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Sync")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Sync(cmd.Context()); err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		fmt.Printf("Sync complete (%s)\n", a.SyncState())
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("List")
		if err != nil {
			return err
		}
		defer a.Close()

		recs := a.List()
		if len(recs) == 0 {
			fmt.Println("No photos starred.")
			return nil
		}

		for _, r := range recs {
			captured := "-"
			if !r.CapturedAt.IsZero() {
				captured = r.CapturedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%s  %10d  %s  %s\n", r.ContentHash[:12], r.ByteSize, captured, r.DisplayName)
		}
		return nil
	},
}

// get command
var getCmd = &cobra.Command{
	Use:   "get HASH",
	Short: "Retrieve a photo or derived artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kindName, _ := cmd.Flags().GetString("kind")
		output, _ := cmd.Flags().GetString("output")

		kind := photolala.ArtifactKind(kindName)
		if !kind.Valid() {
			return fmt.Errorf("unknown artifact kind: %s", kindName)
		}

		a, err := newApp("Retrieve")
		if err != nil {
			return err
		}
		defer a.Close()

		var w *os.File
		if output == "" || output == "-" {
			w = os.Stdout
		} else {
			w, err = os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer w.Close()
		}

		if err := a.Retrieve(cmd.Context(), args[0], kind, w); err != nil {
			if photolala.IsArchived(err) {
				return fmt.Errorf("%s is in cold storage; run `photolala thaw %s` first", args[0], args[0])
			}
			return err
		}
		return nil
	},
}

// thaw command
var thawCmd = &cobra.Command{
	Use:   "thaw HASH",
	Short: "Request restore of an archived photo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		expedited, _ := cmd.Flags().GetBool("expedited")

		if expedited && !confirm("Expedited retrieval incurs extra cost. Continue?") {
			return fmt.Errorf("expedited thaw cancelled")
		}

		a, err := newApp("RequestThaw")
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.RequestThaw(cmd.Context(), args[0], expedited)
		if err != nil {
			return err
		}

		fmt.Printf("Thaw requested for %s\n", args[0])
		fmt.Printf("Handle: %s\n", rec.ThawHandle)
		fmt.Printf("Ready:  ~%s\n", rec.ETA.Format("2006-01-02 15:04:05 MST"))
		return nil
	},
}

var thawStatusCmd = &cobra.Command{
	Use:   "status HANDLE",
	Short: "Check progress of a thaw request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ThawStatus")
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.ThawStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Photo: %s\n", rec.ContentHash)
		fmt.Printf("Tier:  %s\n", rec.Tier)
		if rec.Tier == photolala.TierThawInProgress {
			fmt.Printf("Ready: ~%s\n", rec.ETA.Format("2006-01-02 15:04:05 MST"))
		}
		if rec.Tier == photolala.TierHot && !rec.RetentionUntil.IsZero() {
			fmt.Printf("Available until: %s\n", rec.RetentionUntil.Format("2006-01-02 15:04:05 MST"))
		}
		return nil
	},
}

// cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the local artifact cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "View cache usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("CacheStats")
		if err != nil {
			return err
		}
		defer a.Close()

		count, total, quota := a.CacheStats()
		fmt.Printf("Entries: %d\n", count)
		fmt.Printf("Used:    %d bytes\n", total)
		fmt.Printf("Quota:   %d bytes\n", quota)
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Evict cached artifacts until under quota",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("CachePrune")
		if err != nil {
			return err
		}
		defer a.Close()

		_, before, _ := a.CacheStats()
		a.CachePrune()
		_, after, _ := a.CacheStats()

		fmt.Printf("Evicted %d bytes\n", before-after)
		return nil
	},
}

// account command
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage account lifecycle",
}

var accountScheduleDeletionCmd = &cobra.Command{
	Use:   "schedule-deletion USER_ID",
	Short: "Schedule account data for deletion after a grace period",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		graceDays, _ := cmd.Flags().GetInt("grace-days")

		a, err := newApp("ScheduleAccountDeletion")
		if err != nil {
			return err
		}
		defer a.Close()

		key, err := a.ScheduleAccountDeletion(cmd.Context(), args[0], graceDays)
		if err != nil {
			return err
		}

		fmt.Printf("Deletion scheduled: %s\n", key)
		return nil
	},
}

var accountDeleteCmd = &cobra.Command{
	Use:   "delete USER_ID",
	Short: "Permanently delete all remote data for an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm(fmt.Sprintf("Permanently delete all remote data for %s? This cannot be undone.", args[0])) {
			return fmt.Errorf("deletion cancelled")
		}

		a, err := newApp("DeleteAccount")
		if err != nil {
			return err
		}
		defer a.Close()

		deleted, err := a.DeleteAccountNow(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Deleted %d object(s)\n", deleted)
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// thaw subcommands
	thawCmd.AddCommand(thawStatusCmd)
	thawCmd.Flags().Bool("expedited", false, "Request expedited retrieval (extra cost)")

	// cache subcommands
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePruneCmd)

	// account subcommands
	accountCmd.AddCommand(accountScheduleDeletionCmd)
	accountCmd.AddCommand(accountDeleteCmd)
	accountScheduleDeletionCmd.Flags().IntP("grace-days", "g", 30, "Days before the deletion falls due")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(starCmd)
	starCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	rootCmd.AddCommand(unstarCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().StringP("kind", "k", "photo", "Artifact kind: photo, thumbnail, metadata")
	getCmd.Flags().StringP("output", "o", "", "Write to FILE instead of stdout")
	rootCmd.AddCommand(thawCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(accountCmd)
}
