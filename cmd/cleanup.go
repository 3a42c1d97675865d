package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"intellisurf/internal/pkg/storagefactory"
	"intellisurf/internal/service"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete stale blob-stored message content",
	Long: `Delete objects under a prefix whose last modification is older than the given number of days.
With --archive, also mark active conversations not updated within the same window as archived.`,
	RunE:  runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	flags := cleanupCmd.Flags()
	flags.Int("days", 30, "delete objects older than this many days")
	flags.String("prefix", "messages/", "object key prefix to scan")
	flags.Bool("dry-run", false, "only report what would be deleted")
	flags.Int("workers", 8, "number of concurrent deletes")
	flags.Bool("archive", false, "also archive active conversations older than --days")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	flags := cmd.Flags()

	days, _ := flags.GetInt("days")
	if days <= 0 {
		return errors.New("--days must be positive")
	}
	prefix, _ := flags.GetString("prefix")
	dryRun, _ := flags.GetBool("dry-run")
	workers, _ := flags.GetInt("workers")
	archive, _ := flags.GetBool("archive")
	before := time.Now().AddDate(0, 0, -days)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	blobs, err := storagefactory.NewStorage(ctx, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to init storage: %w", err)
	}
	if closer, ok := blobs.(io.Closer); ok {
		defer closer.Close()
	}

	result, err := service.CleanupBlobs(ctx, blobs, service.CleanupOptions{
		Prefix:  prefix,
		Before:  before,
		DryRun:  dryRun,
		Workers: workers,
	})
	if err != nil {
		return err
	}

	verb := "deleted"
	if dryRun {
		verb = "would delete"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d of %d objects under %q older than %d days (%d failed)\n",
		verb, result.Deleted, result.Scanned, prefix, days, result.Failed)

	if !archive {
		return nil
	}
	if dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "skipped conversation archiving in dry-run mode")
		return nil
	}

	stores, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	archived, err := service.ArchiveConversations(ctx, stores.Conversations, before)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "archived %d conversations not updated in %d days (%s store)\n",
		archived, days, stores.Backend)
	return nil
}
