// Command rpc-server is a generic RPC dispatcher: it interprets each
// confirmed request's JSON body as {"fn": name, ...args}, looks the
// function up in a small registry, and acks with {"result": ...} or
// {"error": ...}, a port of the original redismq rpc-server example.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/stevemandl/redismq/internal/mqconfig"
	"github.com/stevemandl/redismq/internal/mqlog"
	"github.com/stevemandl/redismq/redismq"
)

const (
	streamName = "testStream"
	groupName  = "testGroup"
)

// functionMap holds the RPC-callable functions, keyed by name, mirroring
// the original's register_function decorator.
var functionMap = map[string]func(args map[string]any) (any, error){
	"upper": rpcUpper,
}

func rpcUpper(args map[string]any) (any, error) {
	text, _ := args["text"].(string)
	return strings.ToUpper(text), nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: rpc-server <consumer-name>")
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
		logger.Info("shutting down rpc-server")
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

	logger.Info("rpc-server ready", zap.String("consumer", consumerName))

	for {
		payload, err := consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("read", zap.Error(err))
			continue
		}
		go dispatch(ctx, payload, logger)
	}
}

func dispatch(ctx context.Context, payload *redismq.Payload, logger *zap.Logger) {
	var request map[string]any
	if err := payload.Decode(&request); err != nil {
		_ = payload.Ack(ctx, map[string]any{"error": "JSON object expected"})
		return
	}

	fn, _ := request["fn"].(string)
	if fn == "" {
		_ = payload.Ack(ctx, map[string]any{"error": "missing 'fn'"})
		return
	}
	handler, ok := functionMap[fn]
	if !ok {
		_ = payload.Ack(ctx, map[string]any{"error": fmt.Sprintf("function %q is not defined", fn)})
		return
	}
	delete(request, "fn")

	result, err := handler(request)
	if err != nil {
		_ = payload.Ack(ctx, map[string]any{"error": err.Error()})
		return
	}
	if err := payload.Ack(ctx, map[string]any{"result": result}); err != nil {
		logger.Debug("ack failed", zap.Error(err))
	}
}
