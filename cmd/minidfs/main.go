package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"minidfs/pkg/config"
	"minidfs/pkg/datanode"
	"minidfs/pkg/namenode"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "minidfs",
		Short: "Block-location namenode for a minimal distributed file system",
		Long: `A namenode that tracks datanodes through heartbeats and tells clients
which datanode holds each block of a file. File data never passes through it.`,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (JSON or YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(
		namenodeCmd(),
		datanodeCmd(),
		clientCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file when one is given, then applies MINIDFS_*
// environment overrides. Command flags are applied by the caller.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		var err error
		cfg, err = config.LoadConfig(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	return cfg, nil
}

func namenodeCmd() *cobra.Command {
	var (
		heartbeatAddress string
		adminAddress     string
		metricsAddress   string
		blockSize        string
		maxDatanodes     int
		maxFiles         int
		maxBlocks        int
	)

	cmd := &cobra.Command{
		Use:   "namenode <client-port>",
		Short: "Run the namenode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			defer logger.Sync()

			port, err := strconv.Atoi(args[0])
			if err != nil || port <= 0 || port > 65535 {
				return fmt.Errorf("invalid client port %q", args[0])
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			nn := &cfg.Namenode
			nn.ClientAddress = net.JoinHostPort("", strconv.Itoa(port))

			flags := cmd.Flags()
			if flags.Changed("heartbeat-address") {
				nn.HeartbeatAddress = heartbeatAddress
			}
			if flags.Changed("admin-address") {
				nn.AdminAddress = adminAddress
			}
			if flags.Changed("metrics-address") {
				nn.MetricsAddress = metricsAddress
			}
			if flags.Changed("block-size") {
				if err := nn.BlockSize.Set(blockSize); err != nil {
					return err
				}
			}
			if flags.Changed("max-datanodes") {
				nn.MaxDatanodes = maxDatanodes
			}
			if flags.Changed("max-files") {
				nn.MaxFiles = maxFiles
			}
			if flags.Changed("max-blocks-per-file") {
				nn.MaxBlocksPerFile = maxBlocks
			}

			server, err := namenode.New(nn, logger)
			if err != nil {
				return err
			}
			if err := server.Listen(); err != nil {
				return err
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigChan
				logger.Info("Shutting down namenode")
				server.Stop()
			}()

			return server.Serve()
		},
	}

	cmd.Flags().StringVar(&heartbeatAddress, "heartbeat-address", fmt.Sprintf(":%d", config.DefaultHeartbeatPort), "datanode heartbeat listening address")
	cmd.Flags().StringVar(&adminAddress, "admin-address", "", "gRPC health service address (disabled if empty)")
	cmd.Flags().StringVar(&metricsAddress, "metrics-address", "", "HTTP metrics and health address (disabled if empty)")
	cmd.Flags().StringVar(&blockSize, "block-size", "64MiB", "block size")
	cmd.Flags().IntVar(&maxDatanodes, "max-datanodes", config.DefaultMaxDatanodes, "maximum number of datanodes")
	cmd.Flags().IntVar(&maxFiles, "max-files", config.DefaultMaxFiles, "maximum number of files")
	cmd.Flags().IntVar(&maxBlocks, "max-blocks-per-file", config.DefaultMaxBlocksPerFile, "maximum number of blocks in one file")

	return cmd
}

func datanodeCmd() *cobra.Command {
	var (
		id              int
		port            int
		namenodeAddress string
		interval        string
	)

	cmd := &cobra.Command{
		Use:   "datanode",
		Short: "Send datanode heartbeats to a namenode",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			defer logger.Sync()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dn := &cfg.Datanode

			flags := cmd.Flags()
			if flags.Changed("id") {
				dn.ID = id
			}
			if flags.Changed("port") {
				dn.ListenPort = port
			}
			if flags.Changed("namenode") {
				dn.NamenodeAddress = namenodeAddress
			}
			if flags.Changed("interval") {
				if err := dn.HeartbeatInterval.Set(interval); err != nil {
					return err
				}
			}

			hb, err := datanode.NewHeartbeater(*dn, logger)
			if err != nil {
				return err
			}
			hb.Start()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			<-sigChan

			logger.Info("Shutting down datanode")
			hb.Stop()
			return nil
		},
	}

	cmd.Flags().IntVar(&id, "id", 0, "datanode id (1..max datanodes)")
	cmd.Flags().IntVar(&port, "port", 0, "port the datanode serves blocks on")
	cmd.Flags().StringVar(&namenodeAddress, "namenode", fmt.Sprintf("localhost:%d", config.DefaultHeartbeatPort), "namenode heartbeat address")
	cmd.Flags().StringVar(&interval, "interval", "10s", "heartbeat interval")

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("minidfs namenode v0.1.0")
		},
	}
}

func setupLogger(verbose bool) *zap.Logger {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, _ := config.Build()
	return logger
}
