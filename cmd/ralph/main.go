// Command ralph runs the ralph agent loop: an autonomous agent that follows
// a caller-supplied instruction inside a working directory until it signals
// completion or the iteration budget runs out.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/PolecatWorks/ralph/agentloop"
	"github.com/PolecatWorks/ralph/config"
	"github.com/PolecatWorks/ralph/llm"
)

// version is overridden at build time via -ldflags.
var version = "dev"

var (
	flagConfig  string
	flagSecrets string
	flagDebug   bool
)

func main() {
	root := &cobra.Command{
		Use:           "ralph",
		Short:         "Service and tools for the ralph agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to the YAML configuration file")
	root.PersistentFlags().StringVar(&flagSecrets, "secrets", "", "Path to the secrets directory")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug output")

	root.AddCommand(newVersionCmd(), newAskCmd(), newLoopCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of the application",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

// buildDecider constructs the production Decider from configuration,
// wrapped with the default retry policy.
func buildDecider(cfg *config.RalphConfig) (llm.Decider, *llm.GollmDecider, error) {
	opts := []llm.GollmOption{
		llm.WithMaxTokens(cfg.AIClient.MaxTokens),
		llm.WithTemperature(cfg.AIClient.Temperature),
	}
	if cfg.AIClient.APIKey != "" {
		opts = append(opts, llm.WithAPIKey(cfg.AIClient.APIKey))
	}
	if cfg.AIClient.OllamaBaseURL != "" {
		os.Setenv("OLLAMA_HOST", cfg.AIClient.OllamaBaseURL)
	}

	decider, err := llm.NewGollmDecider(cfg.AIClient.Provider, cfg.AIClient.Model, opts...)
	if err != nil {
		return nil, nil, err
	}
	return &llm.RetryingDecider{Inner: decider, Policy: llm.DefaultRetryPolicy()}, decider, nil
}

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Ask a one-shot question to the model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig, flagSecrets)
			if err != nil {
				return err
			}
			_, gollmDecider, err := buildDecider(cfg)
			if err != nil {
				return err
			}
			answer, err := gollmDecider.Ask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(answer)
			return nil
		},
	}
}

func newLoopCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "loop WORKDIR INSTRUCTION_FILE",
		Short: "Run the ralph agent loop",
		Long: `Run the ralph agent loop.

The instruction file is copied into WORKDIR/prompts/instructions and re-read
at the top of every iteration, so the agent's own update_instruction calls
take effect immediately. The loop stops when the agent calls done, when the
iteration limit is reached, or on an unrecoverable model error.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			workdir, instructionFile := args[0], args[1]

			cfg, err := config.Load(flagConfig, flagSecrets)
			if err != nil {
				return err
			}

			if _, err := os.Stat(instructionFile); err != nil {
				return fmt.Errorf("instruction file '%s' not found", instructionFile)
			}
			absDir, err := filepath.Abs(workdir)
			if err != nil {
				return err
			}
			if info, err := os.Stat(absDir); err != nil || !info.IsDir() {
				return fmt.Errorf("working directory '%s' not found", workdir)
			}

			if err := agentloop.EnsurePromptFiles(absDir); err != nil {
				return err
			}

			instrPath, instruction, err := agentloop.CopyInstruction(instructionFile, absDir)
			if err != nil {
				return err
			}
			if flagDebug {
				fmt.Fprintf(os.Stderr, "Instruction copied to %s\n", instrPath)
			}

			decider, _, err := buildDecider(cfg)
			if err != nil {
				return err
			}

			env := agentloop.NewLocalEnvironment(absDir, instrPath,
				agentloop.WithCommandTimeout(time.Duration(cfg.Loop.CommandTimeoutSeconds)*time.Second))

			registry := agentloop.NewToolRegistry()
			agentloop.RegisterCoreTools(registry)
			registry.Restrict(cfg.Toolbox.AllowedTools)

			store := agentloop.NewInstructionStore(instrPath, instruction)

			loop := agentloop.NewLoopController(decider, registry, env, store, &agentloop.LoopConfig{
				Limit:               limit,
				EnableLoopDetection: cfg.Loop.EnableLoopDetection,
				LoopDetectionWindow: cfg.Loop.LoopDetectionWindow,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			drained := make(chan struct{})
			go func() {
				defer close(drained)
				echoEvents(loop.Events())
			}()

			runErr := loop.Run(ctx)
			loop.Close()
			<-drained

			if runErr != nil {
				return runErr
			}
			if loop.Done() {
				fmt.Println("Objective met (agent signaled done).")
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 1, "Max iterations")
	return cmd
}

// echoEvents renders loop events as line-oriented progress output.
func echoEvents(events <-chan agentloop.LoopEvent) {
	for ev := range events {
		switch ev.Kind {
		case agentloop.EventIterationStart:
			fmt.Printf("Starting iteration %v/%v...\n", ev.Data["iteration"], ev.Data["limit"])
		case agentloop.EventMessage:
			role, _ := ev.Data["role"].(string)
			content, _ := ev.Data["content"].(string)
			if content != "" {
				fmt.Printf("\n[%s]: %s\n", strings.ToUpper(role), content)
			}
		case agentloop.EventLoopDetection:
			fmt.Printf("Warning: %v\n", ev.Data["message"])
		case agentloop.EventLimitReached:
			fmt.Printf("Iteration limit (%v) reached.\n", ev.Data["limit"])
		case agentloop.EventError:
			fmt.Fprintf(os.Stderr, "Error in iteration %v: %v\n", ev.Data["iteration"], ev.Data["error"])
		}
	}
}
