package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/merklekv-mobile/pkg/client"
	"github.com/cuemby/merklekv-mobile/pkg/config"
	"github.com/cuemby/merklekv-mobile/pkg/log"
	"github.com/cuemby/merklekv-mobile/pkg/metrics"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "merklekv-node",
	Short:   "MerkleKV-Mobile node agent",
	Long:    `merklekv-node runs a single MerkleKV-Mobile node: MQTT transport, offline queue, anti-entropy, and the command processor, all driven from a YAML config file.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("merklekv-node version %s\nCommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)
	rootCmd.AddCommand(runCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the node agent until signaled",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		peers, _ := cmd.Flags().GetStringSlice("peer")

		cfg, err := config.Load(configPath, config.WithWarningHook(func(code, message string) {
			log.Logger.Warn().Str("code", code).Msg(message)
		}))
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		c, err := client.New(cfg)
		if err != nil {
			return fmt.Errorf("build client: %w", err)
		}
		for _, p := range peers {
			c.AddPeer(p)
		}

		go func() {
			http.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(metricsAddr, nil); err != nil {
				log.Logger.Error().Err(err).Msg("metrics server error")
			}
		}()
		fmt.Printf("metrics endpoint: http://%s/metrics\n", metricsAddr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := c.Connect(ctx); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		fmt.Println("merklekv-node running, press Ctrl+C to stop")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("shutting down...")
		if err := c.Disconnect(); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		fmt.Println("shutdown complete")
		return nil
	},
}

func init() {
	runCmd.Flags().String("config", "merklekv.yaml", "Path to the node's YAML config file")
	runCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the Prometheus metrics endpoint")
	runCmd.Flags().StringSlice("peer", nil, "Peer node ids to anti-entropy against (repeatable)")
}
