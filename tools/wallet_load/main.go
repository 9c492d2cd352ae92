// Command wallet_load opens many client connections against a running wallet server and
// drives deposits and summaries through each of them.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/vadiminshakov/cryptowallet/internal/protocol"
	"go.uber.org/zap"
)

type counters struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	rejected    atomic.Int64
	replies     atomic.Int64
}

func main() {
	var (
		addr         string
		connections  int
		testDuration time.Duration
		rampUp       time.Duration
	)

	flag.StringVar(&addr, "addr", "localhost:6666", "wallet server address")
	flag.IntVar(&connections, "conns", 100, "number of concurrent client connections")
	flag.DurationVar(&testDuration, "dur", 60*time.Second, "test duration (0 for until interrupted)")
	flag.DurationVar(&rampUp, "ramp", time.Second, "spread connection starts across this window")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if connections <= 0 {
		logger.Fatal("invalid conns", zap.Int("conns", connections))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if testDuration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, testDuration)
		defer stop()
	}

	logger.Info("starting wallet load",
		zap.String("addr", addr),
		zap.Int("conns", connections),
		zap.Duration("duration", testDuration),
		zap.Duration("ramp", rampUp))

	var (
		c  counters
		wg sync.WaitGroup
	)
	start := time.Now()
	interval := rampUp / time.Duration(connections)

	for i := 0; i < connections; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			drive(ctx, addr, &c)
		}()
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Info("status",
					zap.Int64("connected", c.connected.Load()),
					zap.Int64("replies", c.replies.Load()),
					zap.Int64("rejected", c.rejected.Load()),
					zap.Duration("elapsed", time.Since(start).Truncate(time.Second)))
			}
		}
	}()

	wg.Wait()

	elapsed := time.Since(start)
	if elapsed == 0 {
		elapsed = time.Millisecond
	}
	fmt.Printf("done: connected=%d connect_errs=%d stream_errs=%d rejected=%d replies=%d elapsed=%s replies/s=%.2f\n",
		c.connected.Load(),
		c.connectErrs.Load(),
		c.streamErrs.Load(),
		c.rejected.Load(),
		c.replies.Load(),
		elapsed.Truncate(time.Millisecond),
		float64(c.replies.Load())/elapsed.Seconds(),
	)
}

// drive registers a fresh user on its own connection and alternates deposits and summaries.
func drive(ctx context.Context, addr string, c *counters) {
	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.connectErrs.Add(1)
		return
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	c.connected.Add(1)
	r := protocol.NewReader(conn, 0)

	send := func(line string) (string, bool) {
		if err := protocol.WriteCommand(conn, line); err != nil {
			return "", false
		}
		reply, err := r.ReadReply()
		if err != nil {
			return "", false
		}
		c.replies.Add(1)
		return reply, true
	}

	username := "load-" + uuid.NewString()[:8]
	reply, ok := send("register " + username + " load")
	if !ok {
		c.streamErrs.Add(1)
		return
	}
	if !strings.HasPrefix(reply, "Registered successfully") {
		c.rejected.Add(1)
		return
	}

	for i := 0; ctx.Err() == nil; i++ {
		line := "deposit-money 1"
		if i%2 == 1 {
			line = "get-wallet-summary"
		}
		if _, ok := send(line); !ok {
			if ctx.Err() == nil {
				c.streamErrs.Add(1)
			}
			return
		}
	}
}
