package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"createtree/internal/client"
)

const defaultServer = "http://localhost:8080"

func addClientFlags(cmd *cobra.Command, server, token *string) {
	cmd.Flags().StringVar(server, "server", envOr("CREATETREE_SERVER", defaultServer), "API base URL")
	cmd.Flags().StringVar(token, "token", os.Getenv("CREATETREE_TOKEN"), "Bearer token for authenticated servers")
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func newAPIClient(server, token string) (*client.Client, error) {
	return client.New(server, client.WithToken(token))
}

func newMusicCommand(ctx *commandContext) *cobra.Command {
	var (
		server, token string
		req           client.MusicRequest
		wait          bool
		timeout       time.Duration
	)
	cmd := &cobra.Command{
		Use:         "music <prompt>",
		Short:       "Submit a music generation job",
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(server, token)
			if err != nil {
				return err
			}
			req.Prompt = strings.Join(args, " ")
			id, err := c.SubmitMusic(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "job %s submitted\n", id)
			if !wait {
				return nil
			}
			poller := client.NewPoller(c)
			poller.Timeout = timeout
			poller.OnUpdate = progressPrinter(out)
			st, err := poller.Wait(cmd.Context(), id)
			endProgress(out)
			if err != nil {
				return err
			}
			printStatus(out, st)
			return nil
		},
	}
	addClientFlags(cmd, &server, &token)
	cmd.Flags().IntVarP(&req.Duration, "duration", "d", 0, "Track length in seconds (30-480, default 120)")
	cmd.Flags().StringVar(&req.Style, "style", "", "Musical style, e.g. lullaby")
	cmd.Flags().StringVar(&req.Vocal, "vocal", "", "female, male or none")
	cmd.Flags().StringVar(&req.Language, "language", "", "Lyrics language (defaults to the request locale)")
	cmd.Flags().StringVar(&req.Title, "title", "", "Track title")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Poll until the job finishes")
	cmd.Flags().DurationVar(&timeout, "timeout", client.DefaultPollTimeout, "Maximum time to wait with --wait")
	return cmd
}

func newTransformCommand(ctx *commandContext) *cobra.Command {
	var (
		server, token string
		req           client.ImageRequest
		async         bool
	)
	cmd := &cobra.Command{
		Use:         "transform <image-file|image-url>",
		Short:       "Transform a photo into a styled image",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(req.Style) == "" && strings.TrimSpace(req.Prompt) == "" {
				return errors.New("--style or --prompt is required")
			}
			c, err := newAPIClient(server, token)
			if err != nil {
				return err
			}
			if err := loadImageArg(args[0], &req); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !async {
				res, err := c.Transform(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "outcome:  %s\n", res.Outcome)
				if res.Provider != "" {
					fmt.Fprintf(out, "provider: %s\n", res.Provider)
				}
				if res.Message != "" {
					fmt.Fprintf(out, "message:  %s\n", res.Message)
				}
				fmt.Fprintf(out, "image:    %s\n", res.ImageURL)
				return nil
			}
			id, err := c.SubmitImage(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "job %s submitted\n", id)
			poller := client.NewPoller(c)
			poller.OnUpdate = progressPrinter(out)
			st, err := poller.Wait(cmd.Context(), id)
			endProgress(out)
			if st != nil {
				printStatus(out, st)
			}
			return err
		},
	}
	addClientFlags(cmd, &server, &token)
	cmd.Flags().StringVarP(&req.Style, "style", "s", "", "Style key (see GET /v1/styles)")
	cmd.Flags().StringVarP(&req.Prompt, "prompt", "p", "", "Custom prompt overriding the style default")
	cmd.Flags().StringVarP(&req.Model, "model", "m", "", "auto, gpt-image or dall-e")
	cmd.Flags().BoolVar(&async, "job", false, "Submit as a background job and poll it")
	return cmd
}

func loadImageArg(arg string, req *client.ImageRequest) error {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		req.ImageURL = arg
		return nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if len(data) > 10<<20 {
		return fmt.Errorf("image %s is %s; the limit is 10 MB", arg, humanize.Bytes(uint64(len(data))))
	}
	req.Image = base64.StdEncoding.EncodeToString(data)
	return nil
}

func printStatus(out io.Writer, st *client.StatusResponse) {
	rows := [][]string{
		{"Job", st.JobID},
		{"Kind", st.Kind},
		{"Status", st.Status},
		{"Progress", fmt.Sprintf("%d%%", st.Progress)},
	}
	if st.AudioURL != "" {
		rows = append(rows, []string{"Audio", st.AudioURL})
	}
	if st.ImageURL != "" {
		rows = append(rows, []string{"Image", st.ImageURL})
	}
	if st.Duration > 0 {
		rows = append(rows, []string{"Duration", (time.Duration(st.Duration) * time.Second).String()})
	}
	if st.Title != "" {
		rows = append(rows, []string{"Title", st.Title})
	}
	if st.Message != "" {
		rows = append(rows, []string{"Message", st.Message})
	}
	if !st.UpdatedAt.IsZero() {
		rows = append(rows, []string{"Updated", humanize.Time(st.UpdatedAt)})
	}
	fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
}

// progressPrinter rewrites one line on terminals and prints one line per
// change otherwise.
func progressPrinter(out io.Writer) func(*client.StatusResponse) {
	tty := isTerminal(out)
	last := -1
	return func(st *client.StatusResponse) {
		if st.Progress == last && !st.Terminal() {
			return
		}
		last = st.Progress
		if tty {
			fmt.Fprintf(out, "\r%-10s %3d%%", st.Status, st.Progress)
			return
		}
		fmt.Fprintf(out, "%s %d%%\n", st.Status, st.Progress)
	}
}

func endProgress(out io.Writer) {
	if isTerminal(out) {
		fmt.Fprintln(out)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
