package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/mikeboe/deep-search/pkg/app"
	"github.com/mikeboe/deep-search/pkg/config"
	"github.com/mikeboe/deep-search/pkg/research"
	"github.com/mikeboe/deep-search/pkg/server"
)

var (
	maxIterations  int
	maxQueries     int
	reasoningModel string
	timeout        time.Duration
	jsonOutput     bool
	verbose        bool
)

func main() {
	// It's okay if .env doesn't exist, as long as env vars are set
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "deep-search",
		Short: "Iterative web research with cited answers",
		Long: `deep-search answers a question by generating search queries, searching the web,
reflecting on knowledge gaps and repeating until the evidence is sufficient or the
round ceiling is reached. The final answer cites its sources with [n] markers.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(cmd.Name() == "mcp")
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	researchCmd := &cobra.Command{
		Use:   "research [query]",
		Short: "Run the full research loop",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := queryArg(args)
			if err != nil {
				return err
			}
			return runResearch(cmd.Context(), query, false)
		},
	}
	researchCmd.Flags().IntVarP(&maxIterations, "max-iterations", "i", 0, "Maximum research rounds (default from MAX_RESEARCH_LOOPS)")
	researchCmd.Flags().IntVarP(&maxQueries, "max-queries", "q", 0, "Initial search queries (default from INITIAL_SEARCH_QUERY_COUNT)")
	researchCmd.Flags().StringVar(&reasoningModel, "reasoning-model", "", "Model override for reflection and answer generation")

	quickCmd := &cobra.Command{
		Use:   "quick [query]",
		Short: "Answer with a single search round",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := queryArg(args)
			if err != nil {
				return err
			}
			return runResearch(cmd.Context(), query, true)
		},
	}

	for _, c := range []*cobra.Command{researchCmd, quickCmd} {
		c.Flags().DurationVar(&timeout, "timeout", 0, "Abort the research after this duration")
		c.Flags().BoolVar(&jsonOutput, "json", false, "Print the structured result as JSON")
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show engine status and configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := app.NewRuntime(cmd.Context(), config.Load(), slog.Default())
			return printJSON(rt.Engine.Status())
		},
	}

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the research tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := app.NewRuntime(cmd.Context(), config.Load(), slog.Default())
			srv := server.NewMCPServer(rt.Engine, nil, slog.Default())
			slog.Info("MCP server listening on stdio")
			return srv.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}

	rootCmd.AddCommand(researchCmd, quickCmd, statusCmd, mcpCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

// setupLogging writes logs to stderr so stdout carries only results, and the
// MCP protocol when serving on stdio.
func setupLogging(mcpMode bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	if mcpMode {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

// queryArg returns the positional query or prompts for one.
func queryArg(args []string) (string, error) {
	if len(args) == 1 {
		return strings.TrimSpace(args[0]), nil
	}
	reader := bufio.NewReader(os.Stdin)
	fmt.Fprint(os.Stderr, "Enter research question: ")
	input, _ := reader.ReadString('\n')
	query := strings.TrimSpace(input)
	if query == "" {
		return "", research.ErrEmptyQuery
	}
	return query, nil
}

func runResearch(ctx context.Context, query string, quick bool) error {
	rt := app.NewRuntime(ctx, config.Load(), slog.Default())

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var res research.Result
	if quick {
		res = rt.Engine.Quick(ctx, query, research.Options{})
	} else {
		res = rt.Engine.Research(ctx, query, research.Options{
			MaxIterations:  maxIterations,
			MaxQueries:     maxQueries,
			ReasoningModel: reasoningModel,
		})
	}

	if jsonOutput {
		if err := printJSON(res); err != nil {
			return err
		}
	} else if res.OK() {
		fmt.Println(res.Summary)
	}

	if !res.OK() {
		return errors.New(res.Error)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
