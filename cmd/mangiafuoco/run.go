package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/mangiafuoco/pkg/backend/openaichat"
	"github.com/go-go-golems/mangiafuoco/pkg/costs"
	"github.com/go-go-golems/mangiafuoco/pkg/events"
	"github.com/go-go-golems/mangiafuoco/pkg/orchestrator"
	"github.com/go-go-golems/mangiafuoco/pkg/tools"
	"github.com/go-go-golems/mangiafuoco/pkg/turns"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const eventsTopic = "turn-events"

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [prompt...]",
		Short: "Run one turn against the model, executing requested tools",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && viper.GetString("request") == "" {
				return errors.New("provide a prompt or --request")
			}
			return runTurn(cmd.Context(), strings.Join(args, " "))
		},
	}

	cmd.Flags().String("api-key", "", "API key (or MANGIAFUOCO_API_KEY)")
	cmd.Flags().String("base-url", "", "OpenAI-compatible API base URL")
	cmd.Flags().String("model", "gpt-4o-mini", "Model to use")
	cmd.Flags().String("system", "You are a helpful assistant with access to tools.", "System prompt")
	cmd.Flags().Int("max-tokens", 2048, "Maximum response tokens per request")
	cmd.Flags().Int("max-iterations", orchestrator.DefaultMaxIterations, "Maximum tool-loop iterations per turn")
	cmd.Flags().Int("max-continuations", 0, "Auto-continue on truncation up to this many follow-ups")
	cmd.Flags().Duration("tool-timeout", tools.DefaultTimeout, "Per-call tool execution timeout")
	cmd.Flags().Int64("max-parallel-tools", 4, "Global cap on concurrently executing tools")
	cmd.Flags().String("request", "", "Load the full request from a YAML file instead of building one from flags")
	cmd.Flags().String("save", "", "Write the turn result to a YAML file")
	cmd.Flags().Bool("verbose", false, "Log router internals")

	cobra.CheckErr(viper.BindPFlags(cmd.Flags()))

	return cmd
}

func runTurn(ctx context.Context, prompt string) error {
	apiKey := viper.GetString("api-key")
	if apiKey == "" {
		return errors.New("no API key: pass --api-key or set MANGIAFUOCO_API_KEY")
	}

	var clientOpts []openaichat.Option
	if baseURL := viper.GetString("base-url"); baseURL != "" {
		clientOpts = append(clientOpts, openaichat.WithBaseURL(baseURL))
	}
	client := openaichat.New(apiKey, clientOpts...)

	registry, err := buildRegistry(viper.GetDuration("tool-timeout"))
	if err != nil {
		return errors.Wrap(err, "build tool registry")
	}

	dispatcher := tools.NewDispatcher(registry,
		tools.WithLimiter(semaphore.NewWeighted(viper.GetInt64("max-parallel-tools"))),
	)

	router, err := events.NewEventRouter(events.WithVerbose(viper.GetBool("verbose")))
	if err != nil {
		return errors.Wrap(err, "create event router")
	}
	defer func() {
		if err := router.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close event router")
		}
	}()

	router.AddHandler("console", eventsTopic, printEvent)

	estimator, err := costs.NewEstimator(viper.GetString("model"))
	if err != nil {
		return errors.Wrap(err, "create token estimator")
	}

	orch, err := orchestrator.New(
		orchestrator.WithBackend(client),
		orchestrator.WithRegistry(registry),
		orchestrator.WithDispatcher(dispatcher),
		orchestrator.WithSinks(router.Sink(eventsTopic)),
		orchestrator.WithMaxIterations(viper.GetInt("max-iterations")),
		orchestrator.WithAutoContinue(viper.GetInt("max-continuations")),
		orchestrator.WithEstimator(estimator),
	)
	if err != nil {
		return err
	}

	var req *turns.Request
	if path := viper.GetString("request"); path != "" {
		req, err = turns.LoadRequest(path)
		if err != nil {
			return err
		}
		if prompt != "" {
			req.Messages = append(req.Messages, turns.NewUserMessage(prompt))
		}
		if req.Model == "" {
			req.Model = viper.GetString("model")
		}
	} else {
		req = &turns.Request{
			Messages:  []turns.Message{turns.NewUserMessage(prompt)},
			System:    viper.GetString("system"),
			Model:     viper.GetString("model"),
			MaxTokens: viper.GetInt("max-tokens"),
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// First Ctrl-C requests graceful cancellation; in-flight tool calls run
	// to completion and the turn finalizes with a Result.
	cancelCh := make(chan string, 1)
	go func() {
		<-ctx.Done()
		select {
		case cancelCh <- "interrupted by user":
		default:
		}
	}()

	eg, egCtx := errgroup.WithContext(context.Background())
	eg.Go(func() error {
		return router.Run(egCtx)
	})

	var result *turns.Result
	var turnErr error
	eg.Go(func() error {
		defer func() {
			if err := router.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close event router")
			}
		}()
		<-router.Running()
		result, turnErr = orch.RunTurn(context.Background(), req, orchestrator.WithCancelSignal(cancelCh))
		return nil
	})

	if err := eg.Wait(); err != nil {
		return err
	}
	if turnErr != nil && result == nil {
		return turnErr
	}

	printSummary(result)

	if path := viper.GetString("save"); path != "" && result != nil {
		if err := turns.SaveResult(path, result); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("saved turn result")
	}

	if turnErr != nil {
		return turnErr
	}
	return nil
}

// printEvent renders bus events to the terminal: streaming deltas inline,
// tool activity on separate lines.
func printEvent(msg *message.Message) error {
	event, err := events.NewEventFromJson(msg.Payload)
	if err != nil {
		return err
	}

	switch e := event.(type) {
	case *events.EventPartialCompletion:
		fmt.Print(e.Delta)
	case *events.EventToolCall:
		fmt.Printf("\n[tool call] %s(%s)\n", e.ToolCall.Name, e.ToolCall.Input)
	case *events.EventToolResult:
		if e.ToolResult.Error != "" {
			fmt.Printf("[tool %s] %s: %s\n", e.ToolResult.Status, e.ToolResult.ID, e.ToolResult.Error)
		} else {
			fmt.Printf("[tool %s] %s: %s\n", e.ToolResult.Status, e.ToolResult.ID, e.ToolResult.Result)
		}
	case *events.EventInterrupt:
		fmt.Printf("\n[interrupted] %s\n", e.Reason)
	case *events.EventError:
		fmt.Printf("\n[error] %s\n", e.ErrorString)
	case *events.EventFinal:
		fmt.Println()
	}
	return nil
}

func printSummary(result *turns.Result) {
	if result == nil {
		return
	}
	fmt.Printf("\n--- turn %s ---\n", result.TurnID)
	fmt.Printf("stop reason: %s", result.StopReason)
	if result.Cancelled() {
		fmt.Printf(" (cancelled: %s)", result.CancelReason)
	}
	if result.FaultKind != "" {
		fmt.Printf(" (fault: %s %s)", result.FaultKind, result.FaultDetail)
	}
	fmt.Println()
	fmt.Printf("iterations: %d, tokens in/out: %d/%d, tool cost: %.2f units over %d calls\n",
		result.Iterations,
		result.Usage.InputTokens, result.Usage.OutputTokens,
		result.ToolCost, len(result.ToolCalls))
	for _, record := range result.ToolCalls {
		fmt.Printf("  %s %s -> %s (%s)\n", record.ID, record.Name, record.Status, record.Duration.Round(time.Millisecond))
	}
}
