package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skillsenselab/recap/job"
)

func newSubmitCmd() *cobra.Command {
	var model string
	var wait bool

	cmd := &cobra.Command{
		Use:   "submit <recording>",
		Short: "Upload a recording and submit it for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			ctx := cmd.Context()

			created, err := c.UploadRecording(ctx, args[0], model)
			if err != nil {
				return err
			}
			fmt.Printf("job %s created (%.0fs of audio)\n", created.ID, created.DurationSecs)

			submitted, err := c.SubmitJob(ctx, created.ID, "")
			if err != nil {
				return err
			}
			fmt.Printf("job %s %s\n", submitted.ID, submitted.Status)

			if !wait {
				fmt.Printf("run 'recapctl status %s' to follow progress\n", created.ID)
				return nil
			}
			return waitAndPrint(cmd, created.ID)
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "gpt-4o-transcribe", "processing model id")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "poll until processing finishes")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's status and results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if wait {
				return waitAndPrint(cmd, args[0])
			}
			j, err := newClient().GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJob(j)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "poll until processing finishes")
	return cmd
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a job that is processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := newClient().CancelJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("job %s %s\n", j.ID, j.Status)
			return nil
		},
	}
}

func newReprocessCmd() *cobra.Command {
	var model string
	var wait bool

	cmd := &cobra.Command{
		Use:   "reprocess <job-id>",
		Short: "Re-run a completed job, optionally with a different model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := newClient().ReprocessJob(cmd.Context(), args[0], model)
			if err != nil {
				return err
			}
			fmt.Printf("job %s %s\n", j.ID, j.Status)
			if wait {
				return waitAndPrint(cmd, args[0])
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "processing model id (defaults to the job's stored model)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "poll until processing finishes")
	return cmd
}

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List available processing providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := newClient().Providers(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range list.Providers {
				marker := " "
				if p.Default {
					marker = "*"
				}
				state := "connected"
				if !p.Connected {
					state = "disconnected"
				}
				fmt.Printf("%s %-10s %-12s %5.2f credits/min  %s\n",
					marker, p.ID, state, p.CostPerMinute, strings.Join(p.Models, ", "))
			}
			return nil
		},
	}
}

func newCreditsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "credits",
		Short: "Show the credit balance and recent ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := newClient().Credits(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("balance: %d credits\n", summary.Balance)
			for _, e := range summary.Entries {
				fmt.Printf("  %s  %+5d  %-10s %s\n",
					e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Amount, e.Type, e.Description)
			}
			return nil
		},
	}
}

// waitAndPrint polls the job until it is terminal, echoing status changes.
func waitAndPrint(cmd *cobra.Command, id string) error {
	last := job.Status("")
	j, err := newClient().WaitForCompletion(cmd.Context(), id, func(j *job.Job) {
		if j.Status != last {
			fmt.Printf("job %s %s\n", j.ID, j.Status)
			last = j.Status
		}
	})
	if err != nil {
		return err
	}
	printJob(j)
	return nil
}

func printJob(j *job.Job) {
	fmt.Printf("id:        %s\n", j.ID)
	fmt.Printf("status:    %s\n", j.Status)
	if j.ProcessingModel != "" {
		fmt.Printf("model:     %s\n", j.ProcessingModel)
	}
	if j.CreditsConsumed > 0 {
		fmt.Printf("credits:   %d\n", j.CreditsConsumed)
	}
	if j.ErrorNote != "" {
		fmt.Printf("error:     %s\n", j.ErrorNote)
	}
	if j.Summary != nil && *j.Summary != "" {
		fmt.Printf("\nsummary:\n  %s\n", *j.Summary)
	}
	if len(j.ActionItems) > 0 {
		fmt.Println("\naction items:")
		for _, item := range j.ActionItems {
			fmt.Printf("  - %s\n", item)
		}
	}
	if len(j.KeyTopics) > 0 {
		fmt.Printf("\ntopics: %s\n", strings.Join(j.KeyTopics, ", "))
	}
	if j.Sentiment != "" {
		fmt.Printf("sentiment: %s\n", j.Sentiment)
	}
	if j.Transcript != nil && *j.Transcript != "" {
		fmt.Printf("\ntranscript:\n%s\n", *j.Transcript)
	}
}
