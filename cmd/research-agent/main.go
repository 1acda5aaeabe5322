package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mikeboe/research-agent/pkg/app"
	"github.com/mikeboe/research-agent/pkg/config"
	"github.com/mikeboe/research-agent/pkg/research"
)

var (
	prompt     string
	styleLevel int
	noClarify  bool
)

func main() {
	handler := slog.NewTextHandler(os.Stderr, nil)
	slog.SetDefault(slog.New(handler))

	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist, as long as env vars are set
	}

	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:   "research-agent",
		Short: "A terminal-based research agent",
		Long:  `research-agent answers research questions by planning subtasks, gathering sources, and iterating through a synthesize-reflect loop with persistent memory.`,
		Run: func(cmd *cobra.Command, args []string) {
			reader := bufio.NewReader(os.Stdin)

			if !cmd.Flags().Changed("prompt") {
				fmt.Print("Enter research question: ")
				input, _ := reader.ReadString('\n')
				prompt = strings.TrimSpace(input)
			}
			if prompt == "" {
				slog.Error("Research question cannot be empty")
				os.Exit(1)
			}

			ctx := context.Background()
			application, err := app.Build(ctx, cfg, slog.Default())
			if err != nil {
				slog.Error("Failed to build application", "error", err)
				os.Exit(1)
			}
			defer application.Close()

			conv, err := application.Chat.CreateConversation(ctx, prompt)
			if err != nil {
				slog.Error("Failed to create conversation", "error", err)
				os.Exit(1)
			}

			style := research.StyleLevel(styleLevel)
			if style < research.StyleConcise || style > research.StyleDetailed {
				style = research.StyleLevel(cfg.StyleLevel)
			}

			req := research.Request{
				Prompt:         prompt,
				ConversationID: conv.ID.String(),
				Style:          style,
			}

			questions := runOnce(ctx, application, req)
			if len(questions) == 0 {
				return
			}
			if noClarify {
				// Resubmit with empty answers so the run proceeds as asked.
				req.ClarificationAnswers = make([]string, len(questions))
				runOnce(ctx, application, req)
				return
			}

			fmt.Println("\nThe agent needs clarification:")
			answers := make([]string, 0, len(questions))
			for _, q := range questions {
				fmt.Printf("  %s\n  > ", q)
				input, _ := reader.ReadString('\n')
				answers = append(answers, strings.TrimSpace(input))
			}

			req.ClarificationAnswers = answers
			runOnce(ctx, application, req)
		},
	}

	rootCmd.Flags().StringVarP(&prompt, "prompt", "p", "", "The research question")
	rootCmd.Flags().IntVarP(&styleLevel, "style", "s", 0, "Answer style: 1 concise, 2 balanced, 3 detailed")
	rootCmd.Flags().BoolVar(&noClarify, "no-clarify", false, "Skip the interactive clarification round")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

// runOnce drives a single coordinator pass and renders its events. When the
// run suspends for clarification it returns the questions.
func runOnce(ctx context.Context, application *app.App, req research.Request) []string {
	var questions []string

	for ev, err := range application.Coordinator.Run(ctx, req) {
		if err != nil {
			slog.Error("Research failed", "error", err)
			os.Exit(1)
		}

		switch ev.Type {
		case research.EventProgress:
			if p, ok := ev.Payload.(research.ProgressPayload); ok {
				fmt.Fprintf(os.Stderr, "[%s] %s\n", p.Stage, p.Message)
			}
		case research.EventPlan:
			if plan, ok := ev.Payload.(*research.Plan); ok {
				fmt.Fprintf(os.Stderr, "[plan] %s (%d subtasks)\n", plan.Goal, len(plan.Subtasks))
			}
		case research.EventSearchQuery:
			if q, ok := ev.Payload.(research.SearchQueryPayload); ok {
				fmt.Fprintf(os.Stderr, "[search] %s\n", q.Query)
			}
		case research.EventSource:
			if s, ok := ev.Payload.(research.SourcePayload); ok {
				fmt.Fprintf(os.Stderr, "[source] %s\n", s.Title)
			}
		case research.EventClarification:
			if clar, ok := ev.Payload.(*research.Clarification); ok {
				questions = clar.Questions
			}
		case research.EventReflection:
			if r, ok := ev.Payload.(research.ReflectionPayload); ok {
				fmt.Fprintf(os.Stderr, "[reflection] confidence %.2f after %d iteration(s)\n", r.ConfidenceScore, r.IterationCount)
			}
		case research.EventContent:
			if tok, ok := ev.Payload.(string); ok {
				fmt.Print(tok)
			}
		case research.EventDone:
			fmt.Println()
		}
	}
	return questions
}
