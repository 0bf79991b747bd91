// Command io-director routes IO requests to the protocol stream that
// handles the named object, forwarding the caller's original reply
// channel so the eventual worker's ack goes straight back to the caller.
// Grounded in the original redismq examples/io-director.py.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stevemandl/redismq/internal/mqconfig"
	"github.com/stevemandl/redismq/internal/mqlog"
	"github.com/stevemandl/redismq/redismq"
)

const (
	streamName = "testStream"
	groupName  = "testGroup"
)

// objectDefinitions maps an object name to the protocol stream that
// handles IO for it, the same static table the original hardcodes.
var objectDefinitions = map[string]string{
	"oat": "protocol-a",
	"rh":  "protocol-b",
}

func main() {
	var directorName string

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Run the IO director under the given consumer name",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), directorName)
		},
	}
	startCmd.Flags().StringVar(&directorName, "name", "", "consumer name, e.g. director-a (required)")
	_ = startCmd.MarkFlagRequired("name")

	rootCmd := &cobra.Command{
		Use:   "io-director",
		Short: "Forward IO requests to the protocol stream that handles them",
	}
	rootCmd.AddCommand(startCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, directorName string) error {
	cfg := mqconfig.Load()
	logger, err := mqlog.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Info("shutting down io-director")
		cancel()
	}()

	mq, err := redismq.Connect(ctx, cfg.RedisAddress, redismq.WithLogger(logger), redismq.WithNamespace(cfg.Namespace))
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = mq.Close(context.Background()) }()

	consumer, err := mq.Consumer(ctx, streamName, groupName, directorName)
	if err != nil {
		return fmt.Errorf("consumer: %w", err)
	}

	logger.Info("io-director ready", zap.String("director", directorName))

	for {
		payload, err := consumer.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("read", zap.Error(err))
			continue
		}
		go dispatch(ctx, mq, payload, logger)
	}
}

func dispatch(ctx context.Context, mq *redismq.Client, payload *redismq.Payload, logger *zap.Logger) {
	var request map[string]any
	if err := payload.Decode(&request); err != nil {
		_ = payload.Ack(ctx, map[string]any{"error": "JSON object expected"})
		return
	}

	fn, _ := request["fn"].(string)
	if fn != "ioRead" {
		_ = payload.Ack(ctx, map[string]any{"error": fmt.Sprintf("function %q is not defined", fn)})
		return
	}

	objName, _ := request["objName"].(string)
	if objName == "" {
		_ = payload.Ack(ctx, map[string]any{"error": "missing 'objName'"})
		return
	}
	protocolStream, ok := objectDefinitions[objName]
	if !ok {
		_ = payload.Ack(ctx, map[string]any{"error": fmt.Sprintf("object %q is not defined", objName)})
		return
	}

	producer, err := mq.Producer(protocolStream)
	if err != nil {
		_ = payload.Ack(ctx, map[string]any{"error": err.Error()})
		return
	}

	responseChannel, _ := payload.ResponseChannel()
	if _, err := producer.AddUnconfirmedMessage(ctx, request, responseChannel); err != nil {
		_ = payload.Ack(ctx, map[string]any{"error": err.Error()})
		return
	}

	// The downstream worker now owns the reply channel; this hop's own
	// ack must not publish a second reply to the original caller.
	payload.DiscardResponseChannel()
	if err := payload.Ack(ctx, nil); err != nil {
		logger.Debug("ack failed", zap.Error(err))
	}
}
