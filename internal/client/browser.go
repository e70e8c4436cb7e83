package client

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

// BrowserOpener shows the authorization URL to the user.
type BrowserOpener func(ctx context.Context, url string) error

// OpenBrowser launches the platform's default browser without waiting for it.
func OpenBrowser(_ context.Context, url string) error {
	name, args := browserCommand(runtime.GOOS, url)
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	return cmd.Process.Release()
}

func browserCommand(goos, url string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "cmd", []string{"/c", "start", "", url}
	default:
		return "xdg-open", []string{url}
	}
}

// ServerStarter launches the broker process. The default starter detaches it from the CLI's
// session so terminal signals aimed at the CLI do not reach the broker.
type ServerStarter func(ctx context.Context) error

func commandStarter(command []string) ServerStarter {
	return func(_ context.Context) error {
		if len(command) == 0 {
			return fmt.Errorf("no server command configured")
		}
		cmd := exec.Command(command[0], command[1:]...)
		detach(cmd)
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("start server: %w", err)
		}
		return cmd.Process.Release()
	}
}
