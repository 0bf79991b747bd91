// Command rpc-client is an interactive REPL that issues generic RPC calls
// against rpc-server, a port of the original redismq rpc-client example.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/stevemandl/redismq/internal/mqconfig"
	"github.com/stevemandl/redismq/internal/mqlog"
	"github.com/stevemandl/redismq/redismq"
)

const streamName = "testStream"

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

	producer, err := mq.Producer(streamName, redismq.WithConfirmTimeout(cfg.ConfirmTimeout))
	if err != nil {
		logger.Fatal("producer", zap.Error(err))
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("? ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		result, err := upper(ctx, producer, text)
		if err != nil {
			fmt.Printf("exception: %v\n\n", err)
			continue
		}
		fmt.Printf("result: %q\n\n", result)
	}
}

func upper(ctx context.Context, producer *redismq.Producer, text string) (string, error) {
	return dispatch(ctx, producer, "upper", map[string]any{"text": text})
}

// dispatch sends a generic {"fn": name, ...args} RPC request and
// interprets the reply as either a result or a raised error, matching the
// original's dispatch() coroutine.
func dispatch(ctx context.Context, producer *redismq.Producer, fn string, args map[string]any) (string, error) {
	request := map[string]any{"fn": fn}
	for k, v := range args {
		request[k] = v
	}

	reply, err := producer.AddConfirmedMessage(ctx, request)
	if err != nil {
		return "", err
	}
	if reply.Error != nil {
		return "", errors.New(*reply.Error)
	}

	body, ok := reply.Message.(map[string]any)
	if !ok {
		return "", fmt.Errorf("unexpected reply shape: %+v", reply.Message)
	}
	if errMsg, ok := body["error"].(string); ok {
		return "", errors.New(errMsg)
	}
	result, _ := body["result"].(string)
	return result, nil
}
