// Command client is an interactive terminal client for the wallet server.
//
// Usage:
//
//	client --addr localhost:6666
//	client --wizard
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vadiminshakov/cryptowallet/internal/client"
	"github.com/vadiminshakov/cryptowallet/internal/setup"
	"github.com/vadiminshakov/cryptowallet/pkg/retrier"
	"go.uber.org/zap"
)

func main() {
	addr := flag.String("addr", "localhost:6666", "wallet server address")
	wizard := flag.Bool("wizard", false, "ask for credentials before starting")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := retrier.New(
		retrier.WithMaxRetries(5),
		retrier.WithInitialInterval(500*time.Millisecond),
		retrier.WithOnRetry(func(attempt int, err error) {
			logger.Info("retrying connection", zap.Int("attempt", attempt), zap.Error(err))
		}),
	)

	c, err := client.Dial(ctx, *addr, r, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	if *wizard {
		creds, err := setup.RunTUI()
		if err != nil {
			log.Fatal(err)
		}
		reply, err := c.Send(creds.Command())
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(reply)
	}

	if err := client.Run(ctx, c, os.Stdin, os.Stdout); err != nil {
		logger.Error("session ended", zap.Error(err))
	}
}
