// Command fib-service is a confirming consumer of requests for the nth
// Fibonacci number, recursing by issuing two confirmed sub-requests back
// onto its own stream — a direct port of the original redismq example of
// the same name.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/stevemandl/redismq/internal/mqconfig"
	"github.com/stevemandl/redismq/internal/mqlog"
	"github.com/stevemandl/redismq/redismq"
)

const (
	streamName = "fibStream"
	groupName  = "fibGroup"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: fib-service <consumer-name>")
		os.Exit(1)
	}
	consumerName := os.Args[1]

	cfg := mqconfig.Load()
	logger, err := mqlog.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Info("shutting down fib-service")
		cancel()
	}()

	mq, err := redismq.Connect(ctx, cfg.RedisAddress, redismq.WithLogger(logger), redismq.WithNamespace(cfg.Namespace))
	if err != nil {
		logger.Fatal("connect", zap.Error(err))
	}
	defer func() { _ = mq.Close(context.Background()) }()

	consumer, err := mq.Consumer(ctx, streamName, groupName, consumerName)
	if err != nil {
		logger.Fatal("consumer", zap.Error(err))
	}
	producer, err := mq.Producer(streamName, redismq.WithConfirmTimeout(cfg.ConfirmTimeout))
	if err != nil {
		logger.Fatal("producer", zap.Error(err))
	}

	logger.Info("fib-service ready", zap.String("consumer", consumerName))

	for {
		payload, err := consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("read", zap.Error(err))
			continue
		}
		go handle(ctx, payload, producer, logger)
	}
}

func handle(ctx context.Context, payload *redismq.Payload, producer *redismq.Producer, logger *zap.Logger) {
	var n int
	if err := payload.Decode(&n); err != nil {
		_ = payload.Nack(ctx, err.Error())
		return
	}

	result, err := fib(ctx, n, producer)
	if err != nil {
		_ = payload.Nack(ctx, err.Error())
		return
	}
	if err := payload.Ack(ctx, result); err != nil {
		logger.Debug("ack failed", zap.Error(err))
	}
}

type fibResult struct {
	value int
	err   error
}

func fib(ctx context.Context, n int, producer *redismq.Producer) (int, error) {
	if n < 0 {
		return -1, nil
	}
	if n == 0 {
		return 0, nil
	}
	if n == 1 {
		return 1, nil
	}

	part1 := make(chan fibResult, 1)
	part2 := make(chan fibResult, 1)

	go func() {
		reply, err := producer.AddConfirmedMessage(ctx, n-1)
		part1 <- toResult(reply, err)
	}()
	go func() {
		reply, err := producer.AddConfirmedMessage(ctx, n-2)
		part2 <- toResult(reply, err)
	}()

	r1, r2 := <-part1, <-part2
	if r1.err != nil {
		return 0, r1.err
	}
	if r2.err != nil {
		return 0, r2.err
	}
	return r1.value + r2.value, nil
}

func toResult(reply *redismq.Reply, err error) fibResult {
	if err != nil {
		return fibResult{err: err}
	}
	if reply.Error != nil {
		return fibResult{err: fmt.Errorf("%s", *reply.Error)}
	}
	f, _ := reply.Message.(float64)
	return fibResult{value: int(f)}
}
