package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"intellisurf/internal/service"
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Inspect document generation requests",
}

var documentsPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List pending document requests, oldest first",
	RunE:  runDocumentsPending,
}

func init() {
	rootCmd.AddCommand(documentsCmd)
	documentsCmd.AddCommand(documentsPendingCmd)

	documentsPendingCmd.Flags().Int("limit", 20, "maximum number of requests to list (0 for all)")
}

func runDocumentsPending(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	limit, _ := cmd.Flags().GetInt("limit")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	stores, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	// 只读列表不需要对象存储
	docs := service.NewDocumentService(stores.Documents, nil, cfg.Chat.PreviewLength)
	pending, err := docs.ListPending(ctx, limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tTYPE\tSIZE\tCREATED")
	for _, d := range pending {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", d.ID, d.UserID, d.DocumentType, d.ContentSize, d.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
