// Command scanner forwards a keyboard-wedge barcode scanner to the stockcount API.
// Every line read from stdin is a scan. A few lines are commands:
//
//	y / n            confirm or cancel the pending count above stock
//	- CODE           take one unit off
//	set CODE VALUE   type a quantity ("12", "+3", "-2")
//	wh ID            switch warehouse
//	status           print the session status
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/service/commands"
	"github.com/mamadbah2/stockcount/pkg/clients/countsync"
	"github.com/mamadbah2/stockcount/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	baseURL := flag.String("url", envOr("STOCKCOUNT_URL", "http://localhost:8080"), "stockcount API base URL")
	user := flag.String("user", os.Getenv("STOCKCOUNT_USER"), "user id to count for")
	timeout := flag.Duration("timeout", 15*time.Second, "request timeout")
	flag.Parse()

	baseLogger := logger.Must(logger.New(envOr("LOG_LEVEL", "warn")))
	defer func() { _ = baseLogger.Sync() }()

	if *user == "" {
		baseLogger.Fatal("a user id is required (-user or STOCKCOUNT_USER)")
	}

	client := countsync.NewClient(countsync.Config{BaseURL: *baseURL, UserID: *user, Timeout: *timeout})
	dispatcher := commands.NewService(client, baseLogger.Named("svc.commands"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	status, err := client.OpenSession(ctx)
	if err != nil {
		baseLogger.Fatal("failed to open session", zap.Error(err))
	}
	fmt.Printf("counting in warehouse %s (online=%t)\n", status.WarehouseID, status.Online)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()
		if err := client.CloseSession(closeCtx); err != nil {
			baseLogger.Warn("failed to close session", zap.Error(err))
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			cmd := commands.ParseCommand(line)
			if cmd.Type == commands.CommandUnknown && strings.TrimSpace(cmd.Raw) == "" {
				continue
			}
			reply, err := dispatcher.HandleCommand(ctx, cmd)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				continue
			}
			if reply != "" {
				fmt.Println(reply)
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
