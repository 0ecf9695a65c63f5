package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"createtree/internal/domain"
	"createtree/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and maintain generation jobs",
	}
	cmd.AddCommand(newJobsListCommand(ctx))
	cmd.AddCommand(newJobsSweepCommand(ctx))
	cmd.AddCommand(newJobsStatusCommand(ctx))
	cmd.AddCommand(newJobsCancelCommand(ctx))
	return cmd
}

func (c *commandContext) withStore(parent context.Context, fn func(jobs.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := jobs.OpenStore(parent, cfg, c.log())
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the newest jobs in the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(store jobs.Store) error {
				list, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				printJobs(cmd.OutOrStdout(), list, time.Now())
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to show")
	return cmd
}

func printJobs(out io.Writer, list []*domain.Job, now time.Time) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return
	}
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		rows = append(rows, []string{
			job.ID,
			string(job.Kind),
			string(job.Status),
			strconv.Itoa(job.Progress) + "%",
			humanize.RelTime(job.CreatedAt, now, "ago", "from now"),
			jobSummary(job),
		})
	}
	headers := []string{"ID", "Kind", "Status", "Progress", "Created", "Result"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft}
	fmt.Fprintln(out, renderTable(headers, rows, aligns))
}

func jobSummary(job *domain.Job) string {
	switch {
	case job.Status == domain.JobStatusFailed:
		return truncate(job.Error, 48)
	case job.Result != nil && job.Result.URL != "":
		return truncate(job.Result.URL, 48)
	case job.Kind == domain.JobKindMusic:
		return truncate(job.Params.Title, 48)
	default:
		return truncate(job.Params.Style, 48)
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func newJobsSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one eviction pass over the job store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(store jobs.Store) error {
				res, err := jobs.NewSweeper(store, cfg.Jobs, ctx.log()).SweepOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "evicted %s, abandoned %s\n",
					humanize.Comma(int64(res.Evicted)), humanize.Comma(int64(res.Abandoned)))
				return nil
			})
		},
	}
}

func newJobsStatusCommand(ctx *commandContext) *cobra.Command {
	var server, token string
	cmd := &cobra.Command{
		Use:         "status <job-id>",
		Short:       "Read one job status through the API",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(server, token)
			if err != nil {
				return err
			}
			st, err := c.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
	addClientFlags(cmd, &server, &token)
	return cmd
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	var server, token string
	cmd := &cobra.Command{
		Use:         "cancel <job-id>",
		Short:       "Cancel a processing job through the API",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(server, token)
			if err != nil {
				return err
			}
			if err := c.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancellation requested for %s\n", args[0])
			return nil
		},
	}
	addClientFlags(cmd, &server, &token)
	return cmd
}
