package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mikeboe/deep-research/pkg/clients"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/research/tools"
)

var (
	topic       string
	breadth     int
	depth       int
	concurrency int
	output      string
	provider    string
	searchWith  string
	noQuestions bool
)

func main() {
	// Load .env file; plain environment variables work as well
	_ = godotenv.Load()
	cfg := config.Load()

	// Setup structured logging
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	slog.SetDefault(slog.New(handler))

	rootCmd := &cobra.Command{
		Use:   "deep-research",
		Short: "A terminal-based deep research agent",
		Long: `deep-research researches a topic by recursively planning search queries, extracting learnings
and following up on new directions, then writes a markdown report with its sources.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(os.Stdin)
			interactive := !cmd.Flags().Changed("topic")

			if interactive {
				topic = prompt(reader, "What would you like to research? ")
				if topic == "" {
					return fmt.Errorf("topic cannot be empty")
				}
				if !cmd.Flags().Changed("breadth") {
					breadth = promptInt(reader, fmt.Sprintf("Enter research breadth (recommended 2-10, default %d): ", breadth), breadth)
				}
				if !cmd.Flags().Changed("depth") {
					depth = promptInt(reader, fmt.Sprintf("Enter research depth (recommended 1-5, default %d): ", depth), depth)
				}
			} else if strings.TrimSpace(topic) == "" {
				return fmt.Errorf("--topic flag provided but empty")
			}

			if cmd.Flags().Changed("provider") {
				cfg.LLMProvider = provider
			}
			if cmd.Flags().Changed("search") {
				cfg.SearchProvider = searchWith
			}

			llm, err := clients.New(cfg)
			if err != nil {
				return fmt.Errorf("failed to init language model: %w", err)
			}
			search, err := tools.New(cfg)
			if err != nil {
				return fmt.Errorf("failed to init search: %w", err)
			}

			rc := cfg.Research()
			rc.Breadth = breadth
			rc.Depth = depth
			rc.Concurrency = concurrency
			engine, err := research.NewEngine(llm, search, rc)
			if err != nil {
				return fmt.Errorf("error initializing engine: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			goal := research.Goal{Text: topic}
			if interactive && !noQuestions {
				questions, err := engine.Clarify(ctx, topic, 5)
				if err != nil {
					return err
				}
				if len(questions) > 0 {
					fmt.Println("\nTo better understand your research needs, please answer these follow-up questions:")
				}
				for _, q := range questions {
					answer := prompt(reader, fmt.Sprintf("\n%s\nYour answer: ", q))
					goal.OpenQuestions = append(goal.OpenQuestions, fmt.Sprintf("Q: %s A: %s", q, answer))
				}
			}

			slog.Info("Starting research", "topic", topic, "breadth", breadth, "depth", depth,
				"provider", cfg.LLMProvider, "search", cfg.SearchProvider)
			report, err := engine.Investigate(ctx, goal, breadth, depth)
			if err != nil {
				return fmt.Errorf("error running research: %w", err)
			}

			if err := os.WriteFile(output, []byte(report.Markdown), 0644); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			slog.Info("Report written", "file", output, "learnings", len(report.Learnings),
				"sources", len(report.Sources), "queries", report.Coverage.Queries, "failed", report.Coverage.Failed)
			return nil
		},
	}

	rootCmd.Flags().StringVarP(&topic, "topic", "t", "", "The research topic")
	rootCmd.Flags().IntVarP(&breadth, "breadth", "b", cfg.Breadth, "Number of queries per level")
	rootCmd.Flags().IntVarP(&depth, "depth", "d", cfg.Depth, "Number of recursive levels")
	rootCmd.Flags().IntVarP(&concurrency, "concurrency", "c", cfg.Concurrency, "Maximum in-flight model and search calls")
	rootCmd.Flags().StringVarP(&output, "output", "o", "output.md", "File to write the report to")
	rootCmd.Flags().StringVar(&provider, "provider", cfg.LLMProvider, "Language model provider (openai, deepseek, google)")
	rootCmd.Flags().StringVar(&searchWith, "search", cfg.SearchProvider, "Search provider (firecrawl, tavily, brave, duckduckgo, arxiv)")
	rootCmd.Flags().BoolVar(&noQuestions, "no-questions", false, "Skip the clarifying questions")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func promptInt(reader *bufio.Reader, label string, def int) int {
	input := prompt(reader, label)
	if input == "" {
		return def
	}
	n, err := strconv.Atoi(input)
	if err != nil {
		slog.Warn("Not a number, using default", "input", input, "default", def)
		return def
	}
	return n
}
