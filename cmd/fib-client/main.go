// Command fib-client is an interactive REPL that sends confirmed requests
// to fib-service and prints the reply, a port of the original redismq
// fib-client example.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/stevemandl/redismq/internal/mqconfig"
	"github.com/stevemandl/redismq/internal/mqlog"
	"github.com/stevemandl/redismq/redismq"
)

func main() {
	cfg := mqconfig.Load()
	logger, err := mqlog.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	mq, err := redismq.Connect(ctx, cfg.RedisAddress, redismq.WithLogger(logger), redismq.WithNamespace(cfg.Namespace))
	if err != nil {
		logger.Fatal("connect", zap.Error(err))
	}
	defer func() { _ = mq.Close(context.Background()) }()

	producer, err := mq.Producer("fibStream", redismq.WithConfirmTimeout(cfg.ConfirmTimeout))
	if err != nil {
		logger.Fatal("producer", zap.Error(err))
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("? ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		n, err := strconv.Atoi(line)
		if err != nil {
			fmt.Printf("not a number: %v\n\n", err)
			continue
		}

		reply, err := producer.AddConfirmedMessage(ctx, n)
		if err != nil {
			fmt.Printf("error: %v\n\n", err)
			continue
		}
		fmt.Printf("result: %+v\n\n", reply)
	}
}
