package cli

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/iudanet/zfswitness/pkg/api"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

func newReportCmd(opts *rootOptions) *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Report the local snapshot inventory to the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, store, err := openService(opts)
			if err != nil {
				return err
			}
			defer store.Close()

			resp, err := svc.Report(cmd.Context(), full)
			if err != nil {
				return err
			}

			fmt.Printf("Report accepted: %d added, %d removed, %d unchanged\n",
				resp.Added, resp.Removed, resp.Unchanged)
			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Send the full inventory instead of a delta")
	return cmd
}

func newInstructionsCmd(opts *rootOptions) *cobra.Command {
	var diagnostics bool

	cmd := &cobra.Command{
		Use:   "instructions",
		Short: "Fetch replication instructions for this node",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, store, err := openService(opts)
			if err != nil {
				return err
			}
			defer store.Close()

			resp, err := svc.FetchInstructions(cmd.Context(), diagnostics)
			if err != nil {
				return err
			}

			if len(resp.Datasets) == 0 {
				fmt.Println("Nothing to do: no pending instructions for this node.")
			}
			for _, instr := range resp.Datasets {
				fmt.Printf("Dataset %s: %s -> %s\n", instr.Dataset, instr.SourceNodeID, instr.TargetNodeID)
				if instr.StartingSnapshot != "" {
					fmt.Printf("  incremental from %s\n", instr.StartingSnapshot)
				}
				fmt.Printf("  ending snapshot  %s\n", instr.EndingSnapshot)
				fmt.Printf("  command: %s\n", instr.Command)
			}
			for _, line := range resp.Diagnostics {
				fmt.Printf("# %s\n", line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&diagnostics, "diagnostics", false, "Include skip reasons for dropped candidates")
	return cmd
}

func newStateCmd(opts *rootOptions) *cobra.Command {
	var (
		groupID  string
		dataset  string
		status   string
		errorMsg string
	)

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Report the result of an executed instruction",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, store, err := openService(opts)
			if err != nil {
				return err
			}
			defer store.Close()

			identity, err := store.GetIdentity()
			if err != nil {
				return err
			}

			if err := svc.ReportState(cmd.Context(), api.UpdateSyncStateRequest{
				GroupID:      groupID,
				Dataset:      dataset,
				NodeID:       identity.NodeID,
				Status:       status,
				ErrorMessage: errorMsg,
			}); err != nil {
				return err
			}

			fmt.Printf("State recorded: %s/%s -> %s\n", groupID, dataset, status)
			return nil
		},
	}

	cmd.Flags().StringVar(&groupID, "group", "", "Sync group ID")
	cmd.Flags().StringVar(&dataset, "dataset", "", "Dataset name")
	cmd.Flags().StringVar(&status, "status", "", "Resulting status (in_sync, syncing, out_of_sync, error)")
	cmd.Flags().StringVar(&errorMsg, "message", "", "Error message for status=error")
	_ = cmd.MarkFlagRequired("group")
	_ = cmd.MarkFlagRequired("dataset")
	_ = cmd.MarkFlagRequired("status")

	return cmd
}

func newVersionCmd(version, buildDate, gitCommit string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("zfswitness agent\n")
			fmt.Printf("Version:    %s\n", version)
			fmt.Printf("Build Date: %s\n", buildDate)
			fmt.Printf("Git Commit: %s\n", gitCommit)
		},
	}
}
