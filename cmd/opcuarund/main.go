// Command opcuarund is the OPC UA client runtime's standalone
// entrypoint: it loads a YAML bootstrap config, builds the
// pkg/runtime.Runtime, fronts it with a NATS bridge, and serves a
// Prometheus /metrics endpoint, adapted from the teacher's bare main()
// into a Cobra command tree in ChuLiYu-raft-recovery's internal/cli
// style.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/scadaworks/opcua-runtime/internal/config"
	"github.com/scadaworks/opcua-runtime/internal/metrics"
	"github.com/scadaworks/opcua-runtime/pkg/runtime"
)

var (
	configPath string
	natsURL    string
)

func main() {
	if err := buildCLI().Execute(); err != nil {
		slog.Error("opcuarund exited with error", "error", err)
		os.Exit(1)
	}
}

func buildCLI() *cobra.Command {
	root := &cobra.Command{
		Use:   "opcuarund",
		Short: "OPC UA client runtime with a NATS bridge",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML bootstrap config")
	root.PersistentFlags().StringVar(&natsURL, "nats-url", "nats://127.0.0.1:4222", "NATS server URL")

	root.AddCommand(buildServeCommand())
	root.AddCommand(buildVersionCommand())
	return root
}

func buildVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the runtime version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("opcuarund dev")
			return nil
		},
	}
}

func buildServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "connect to the configured OPC UA server and serve the NATS bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	file, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	defs, err := file.VariableDefinitions()
	if err != nil {
		return fmt.Errorf("build variable definitions: %w", err)
	}

	var collector *metrics.Collector
	var metricsCancel context.CancelFunc
	if file.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		collector = metrics.NewCollector(reg)
		metricsCtx, cancel := context.WithCancel(context.Background())
		metricsCancel = cancel
		go func() {
			if err := metrics.Serve(metricsCtx, file.Metrics.Addr, reg); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	rt := runtime.New(runtime.Config{
		EndpointURL:        file.Connection.EndpointURL,
		SecurityPolicy:     file.Connection.SecurityPolicy,
		Identity:           file.SupervisorConfig().Identity,
		ApplicationURI:     file.Connection.ApplicationURI,
		DialTimeout:        file.SupervisorConfig().DialTimeout,
		ReconnectPolicy:    file.ReconnectPolicy(),
		SubscriptionConfig: file.SubscriptionConfig(),
	})
	if collector != nil {
		rt.WithMetrics(collector)
	}

	if err := rt.RegisterMany(defs); err != nil {
		return fmt.Errorf("register variables: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := rt.Connect(connectCtx); err != nil {
		slog.Warn("initial connect failed, supervisor will keep retrying", "error", err)
	}

	if err := rt.StartSubscription(context.Background(), file.SubscriptionConfig().Mode); err != nil {
		slog.Warn("failed to start subscription engine", "error", err)
	}

	nc, err := connectToNats(natsURL)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Close()

	br := newBridge(nc, rt, moduleID)
	if err := br.Start(context.Background()); err != nil {
		return fmt.Errorf("start bridge: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	shutdownCh := make(chan struct{}, 1)
	shutdownSub, err := nc.Subscribe(fmt.Sprintf("%s.shutdown", moduleID), func(msg *nats.Msg) {
		select {
		case shutdownCh <- struct{}{}:
		default:
		}
	})
	if err != nil {
		slog.Warn("failed to subscribe to shutdown subject", "error", err)
	} else {
		defer shutdownSub.Unsubscribe()
	}

	select {
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig.String())
	case <-shutdownCh:
		slog.Info("received shutdown request over NATS")
	}

	br.Stop()
	rt.Disconnect()
	if metricsCancel != nil {
		metricsCancel()
	}
	return nil
}

const moduleID = "opcua"
