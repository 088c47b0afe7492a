package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/moolen/sre-assistant/internal/agent/coordinator"
)

var (
	batchConcurrency int
	batchUser        string
)

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Answer every line of a file as an independent turn",
	Long: `Run one turn per non-empty line of file ('-' reads stdin). Turns run
concurrently and share nothing but the oracle and the specialists. A summary
line is printed per query in input order.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 4, "Maximum number of concurrent turns")
	batchCmd.Flags().StringVar(&batchUser, "user", defaultUser(), "User id prefix; turn i runs as <user>-<i>")
}

// batchResult summarizes one turn.
type batchResult struct {
	Query    string        `json:"query"`
	Tools    []string      `json:"tools"`
	Outcome  string        `json:"outcome"`
	Response string        `json:"response,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	queries, err := readQueries(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	results, err := runQueries(ctx, a.coordinator, queries, batchUser, batchConcurrency)
	if err != nil {
		return err
	}
	failed := 0
	out := cmd.OutOrStdout()
	for i, r := range results {
		if r.Outcome != string(coordinator.EventComplete) {
			failed++
		}
		fmt.Fprintf(out, "[%d] %s (%s, %s, tools=%v)\n", i+1, r.Query, r.Outcome, r.Duration.Round(time.Millisecond), r.Tools)
	}
	fmt.Fprintf(out, "%d queries, %d failed\n", len(results), failed)
	return nil
}

// runQueries runs each query as its own turn with at most limit in flight.
// A failed turn is a result, not an error.
func runQueries(ctx context.Context, c *coordinator.Coordinator, queries []string, user string, limit int) ([]batchResult, error) {
	results := make([]batchResult, len(queries))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	var mu sync.Mutex
	for i, query := range queries {
		g.Go(func() error {
			start := time.Now()
			transcript := coordinator.Collect(c.RunTurn(ctx, query, fmt.Sprintf("%s-%d", user, i+1)))
			terminal, _ := transcript.Terminal()
			r := batchResult{
				Query:    query,
				Tools:    transcript.ToolNames(),
				Outcome:  string(terminal.Type),
				Response: transcript.Response(),
				Error:    terminal.Message,
				Duration: time.Since(start),
			}
			mu.Lock()
			results[i] = r
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func readQueries(path string, stdin io.Reader) ([]string, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	var queries []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" && !strings.HasPrefix(line, "#") {
			queries = append(queries, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read queries: %w", err)
	}
	return queries, nil
}
