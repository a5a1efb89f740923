package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/go-elixir/cmd/elixir/lex"
	elixirdebug "github.com/walteh/go-elixir/pkg/debug"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		println(err.Error())
		stop()
		os.Exit(1)
	}
}

func newViper() *viper.Viper {
	vp := viper.New()
	vp.SetEnvPrefix("ELIXIR")
	vp.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	vp.AutomaticEnv()
	return vp
}

func newRootCommand(vp *viper.Viper, fs afero.Fs, stderr io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "elixir",
		Short: "A lexer for elixir XML templates",
	}

	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" {
		rootCmd.Version = "unknown"
	} else {
		rootCmd.Version = info.Main.Version
	}

	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored logs")
	for _, name := range []string{"log-level", "no-color"} {
		if err := vp.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		level, err := elixirdebug.ParseLevel(vp.GetString("log-level"))
		if err != nil {
			return errors.Errorf("parsing log level: %w", err)
		}
		logger := elixirdebug.NewLogger(stderr, level, vp.GetBool("no-color"))
		cmd.SetContext(logger.WithContext(cmd.Context()))
		return nil
	}

	cmdVersion := &cobra.Command{
		Use: "raw-version",
		Run: func(cmdz *cobra.Command, args []string) {
			cmdz.Println(rootCmd.Version)
		},
		Hidden: true,
	}

	rootCmd.AddCommand(cmdVersion)
	rootCmd.AddCommand(lex.NewLexCommand(vp, fs))

	rootCmd.SilenceUsage = true

	return rootCmd
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	rootCmd := newRootCommand(newViper(), afero.NewOsFs(), stderr)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return errors.Errorf("failed to execute command: %w", err)
	}

	return nil
}
