// Command bot runs the reminder bot until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"remindbot/internal/app"
)

const shutdownBudget = 10 * time.Second

func main() {
	cfgPath := flag.String("config", "./config.json", "config file (.json, .yaml or .yml)")
	flag.Parse()
	os.Exit(run(*cfgPath))
}

func run(cfgPath string) int {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	bot, err := app.NewApp(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "remindbot:", err)
		return 1
	}
	if err := bot.Start(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "remindbot: start:", err)
		return 1
	}
	// outside systemd this is a no-op
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	var reason app.StopReason
	select {
	case sig := <-signals:
		reason = app.StopSIGINT
		if sig == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-bot.Done():
		reason = app.StopFatalError
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	ctx, cancel := context.WithTimeout(context.Background(), shutdownBudget)
	defer cancel()
	_ = bot.Stop(ctx, reason)

	if err := bot.Err(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "remindbot:", err)
		return 1
	}
	return 0
}
