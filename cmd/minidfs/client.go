package main

import (
	"encoding/json"
	"fmt"
	"os"

	"minidfs/pkg/client"
	"minidfs/pkg/protocol"
	"minidfs/pkg/types"
	"minidfs/pkg/utils"

	"github.com/spf13/cobra"
)

type clientFlags struct {
	namenode string
	admin    string
	timeout  string
	json     bool
}

func clientCmd() *cobra.Command {
	flags := &clientFlags{}

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Query a namenode for block locations",
	}

	cmd.PersistentFlags().StringVar(&flags.namenode, "namenode", "", "namenode client address (host:port)")
	cmd.PersistentFlags().StringVar(&flags.admin, "admin", "", "namenode gRPC health address")
	cmd.PersistentFlags().StringVar(&flags.timeout, "timeout", "", "request timeout (e.g. 30s)")
	cmd.PersistentFlags().BoolVar(&flags.json, "json", false, "print JSON instead of tables")

	cmd.AddCommand(
		clientReadCmd(flags),
		clientWriteCmd(flags),
		clientModifyCmd(flags),
		clientStatusCmd(flags),
	)
	return cmd
}

func (f *clientFlags) connect() (*client.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cc := cfg.Client

	if f.namenode != "" {
		cc.NamenodeAddress = f.namenode
	}
	if f.admin != "" {
		cc.AdminAddress = f.admin
	}
	if f.timeout != "" {
		if err := cc.Timeout.Set(f.timeout); err != nil {
			return nil, err
		}
	}
	if cc.NamenodeAddress == "" {
		return nil, fmt.Errorf("namenode address is required (--namenode or client.namenode_address)")
	}

	return client.New(cc, setupLogger(verbose))
}

func clientReadCmd(flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "read <file>",
		Short: "Show where the blocks of a file are stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.connect()
			if err != nil {
				return err
			}
			file, err := c.GetFileLocation(cmd.Context(), args[0])
			if err != nil {
				return describeError(args[0], err)
			}
			return flags.printFile(file)
		},
	}
}

func clientWriteCmd(flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "write <file> <size>",
		Short: "Allocate datanodes for a new file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := utils.ParseDataSize(args[1])
			if err != nil {
				return err
			}
			c, err := flags.connect()
			if err != nil {
				return err
			}
			file, err := c.GetFileReceivers(cmd.Context(), args[0], uint64(size))
			if err != nil {
				return describeError(args[0], err)
			}
			return flags.printFile(file)
		},
	}
}

func clientModifyCmd(flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "modify <file> <new-size>",
		Short: "Grow an existing file and allocate its new blocks",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := utils.ParseDataSize(args[1])
			if err != nil {
				return err
			}
			c, err := flags.connect()
			if err != nil {
				return err
			}
			file, err := c.GetFileUpdatePoint(cmd.Context(), args[0], uint64(size))
			if err != nil {
				return describeError(args[0], err)
			}
			return flags.printFile(file)
		},
	}
}

func clientStatusCmd(flags *clientFlags) *cobra.Command {
	var health bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List live datanodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.connect()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if health {
				status, err := c.CheckHealth(ctx)
				if err != nil {
					return err
				}
				if flags.json {
					return printJSON(map[string]string{"status": status.String()})
				}
				fmt.Println(renderHealth(status))
				return nil
			}

			snap, err := c.GetSystemInformation(ctx)
			if err != nil {
				return err
			}
			if flags.json {
				return printJSON(snap)
			}
			fmt.Println(renderCluster(snap))
			return nil
		},
	}

	cmd.Flags().BoolVar(&health, "health", false, "query the gRPC health service instead")
	return cmd
}

func (f *clientFlags) printFile(file types.FileRecord) error {
	if f.json {
		return printJSON(file)
	}
	fmt.Println(renderFile(file))
	return nil
}

func describeError(name string, err error) error {
	switch {
	case protocol.IsStatus(err, protocol.StatusNotFound):
		return fmt.Errorf("file %q does not exist", name)
	case protocol.IsStatus(err, protocol.StatusNoNodesAvailable):
		return fmt.Errorf("no datanodes are registered with the namenode")
	case protocol.IsStatus(err, protocol.StatusFileTooLarge):
		return fmt.Errorf("file %q would exceed the namenode's per-file block limit", name)
	}
	return err
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
