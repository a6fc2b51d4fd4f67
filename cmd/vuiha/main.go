// Command vuiha is the terminal client for the conversation gateway.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/bootstrap"
	"github.com/SIReal3103/Vuiha-AI-Thuc-Chien/internal/config"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

// app is the per-invocation state shared by subcommands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	deps   *bootstrap.Dependencies
}

// openApp loads configuration and wires dependencies. Logs go to stderr so
// stdout carries only conversation output.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := cfg.NewLoggerTo(cmd.ErrOrStderr())
	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize dependencies: %w", err)
	}
	return &app{cfg: cfg, logger: logger, deps: deps}, nil
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "vuiha",
		Short:         "Chat, image, speech and video generation through the AI gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newModelsCmd())
	cmd.AddCommand(newConversationsCmd())
	cmd.AddCommand(newNewCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newImageCmd())
	cmd.AddCommand(newSpeakCmd())
	cmd.AddCommand(newVideoCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "vuiha %s (commit: %s)\n", Version, Commit)
		},
	}
}

func execute(cmd *cobra.Command, stderr io.Writer) int {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd(), os.Stderr))
}
