package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/deepresearch/research-agent/internal/progress"
	"github.com/deepresearch/research-agent/internal/streamclient"
	"github.com/deepresearch/research-agent/pkg/models"

	"github.com/spf13/cobra"
)

var queryFlags struct {
	server     string
	searchType string
	numResults int
	after      string
	before     string
	session    string
	out        string
	json       bool
	logLevel   string
}

func init() {
	f := queryCmd.Flags()
	f.StringVar(&queryFlags.server, "server", envOr("RESEARCH_SERVER", "http://localhost:8080"), "relay base URL")
	f.StringVar(&queryFlags.searchType, "search-type", "", "preferred search type (neural|keyword)")
	f.IntVar(&queryFlags.numResults, "num-results", 0, "approximate number of sources to find")
	f.StringVar(&queryFlags.after, "after", "", "only sources published after this date (YYYY-MM-DD)")
	f.StringVar(&queryFlags.before, "before", "", "only sources published before this date (YYYY-MM-DD)")
	f.StringVar(&queryFlags.session, "session", "", "resume an earlier session")
	f.StringVar(&queryFlags.out, "out", "", "write the report markdown to this file")
	f.BoolVar(&queryFlags.json, "json", false, "print the raw result event instead of the report")
	f.StringVar(&queryFlags.logLevel, "log-level", "warn", "client log level")
	rootCmd.AddCommand(queryCmd)
}

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Run a research query against a relay and follow its progress",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	setupLogging(queryFlags.logLevel, "console")

	q, err := buildQuery(strings.Join(args, " "))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	p := newPrinter(cmd.ErrOrStderr(), progress.DefaultTables())
	if err := streamclient.New(queryFlags.server).Query(ctx, q, p.Add); err != nil {
		return err
	}
	return finish(cmd, p)
}

func buildQuery(text string) (models.Query, error) {
	q := models.Query{Text: text, SessionID: queryFlags.session}

	hints := &models.SearchHints{}
	if queryFlags.numResults > 0 {
		hints.NumResults = json.Number(strconv.Itoa(queryFlags.numResults))
	}
	switch st := models.SearchType(queryFlags.searchType); st {
	case "":
	case models.SearchNeural, models.SearchKeyword:
		hints.SearchType = st
	default:
		return q, fmt.Errorf("invalid --search-type %q (want neural or keyword)", queryFlags.searchType)
	}
	if queryFlags.after != "" || queryFlags.before != "" {
		hints.DateRange = &models.DateRange{Start: queryFlags.after, End: queryFlags.before}
	}
	if *hints != (models.SearchHints{}) {
		q.Options = hints
	}
	return q, nil
}

func finish(cmd *cobra.Command, p *printer) error {
	var err error
	state := p.tracker.State()
	if state.Report == nil {
		if p.lastError != "" {
			return fmt.Errorf("research failed: %s", p.lastError)
		}
		if !p.tracker.Finished() {
			return fmt.Errorf("stream ended before completion")
		}
		return fmt.Errorf("research ended without a report")
	}

	report := *state.Report
	out := cmd.OutOrStdout()
	if queryFlags.json {
		raw := report.Raw()
		if len(raw) == 0 {
			if raw, err = json.Marshal(report); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
		}
		fmt.Fprintln(out, string(raw))
	} else {
		fmt.Fprintln(out, report.ReportText())
		fmt.Fprintln(cmd.ErrOrStderr(), progress.ReportSummary(report))
	}
	if state.SessionID != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", state.SessionID)
	}

	if queryFlags.out != "" {
		if err := os.WriteFile(queryFlags.out, []byte(report.ReportText()), 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if report.IsError {
		return fmt.Errorf("research ended with an error result")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
