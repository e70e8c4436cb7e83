// Package main is the command-line front end of the OAuth broker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/7HR4IZ3/ai-video-creator/internal/client"
	"github.com/7HR4IZ3/ai-video-creator/internal/config"
	"github.com/7HR4IZ3/ai-video-creator/internal/domain/oauth"
)

const usage = `usage: oauthcli [flags] <command> [platform]

commands:
  auth <platform>      authorize, reusing or refreshing stored tokens when possible
  tokens <platform>    print stored tokens
  refresh <platform>   refresh stored tokens
  health               report whether the broker is reachable
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("oauthcli", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	serverURL := fs.String("server", "", "broker base URL (default: OAUTH_SERVER_URL)")
	noStart := fs.Bool("no-start", false, "do not launch the broker when it is not running")
	verbose := fs.Bool("v", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}

	logger, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	c, err := client.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	command := fs.Arg(0)
	if command == "health" {
		if c.IsServerRunning(ctx) {
			fmt.Fprintf(stdout, "broker at %s is running\n", cfg.ServerURL)
			return 0
		}
		fmt.Fprintf(stdout, "broker at %s is not reachable\n", cfg.ServerURL)
		return 1
	}

	if fs.NArg() < 2 {
		fmt.Fprintf(stderr, "Error: %s requires a platform\n", command)
		return 2
	}
	platform, err := oauth.ParsePlatform(fs.Arg(1))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	var tokens *oauth.TokenSet
	switch command {
	case "auth":
		if !*noStart {
			if err := c.EnsureServerRunning(ctx); err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
				return 1
			}
		}
		tokens, err = c.Authenticate(ctx, platform)
	case "tokens":
		tokens, err = c.GetStoredTokens(ctx, platform)
	case "refresh":
		tokens, err = c.RefreshTokens(ctx, platform)
	default:
		fmt.Fprintf(stderr, "Error: unknown command %q\n", command)
		fs.Usage()
		return 2
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, client.ErrAuthTimeout) || errors.Is(err, client.ErrAuthorizationFailed) {
			return 3
		}
		return 1
	}
	if tokens == nil {
		fmt.Fprintf(stderr, "no tokens for %s\n", platform)
		return 1
	}

	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(tokens); err != nil {
		fmt.Fprintf(stderr, "Error: encode tokens: %v\n", err)
		return 1
	}
	return 0
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}
