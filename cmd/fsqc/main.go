// Command fsqc is a thin client CLI over the client library: it stages one
// local file into a running fsqd daemon (open, write, close). It
// deliberately does not retry or batch; it exists to exercise client.Client
// in a runnable form.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/GSI-HPC/fsqd/client"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr        string
		node        string
		password    string
		fs          string
		desc        string
		storageDest uint32
	)

	cmd := &cobra.Command{
		Use:   "fsqc <source-file> <remote-path>",
		Short: "Stage a single local file into an fsqd daemon",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return stageFile(addr, node, password, fs, desc, storageDest, args[0], args[1])
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&addr, "addr", "a", "localhost:7625", "fsqd daemon address")
	flags.StringVarP(&node, "node", "n", "", "identity-map node name")
	flags.StringVar(&password, "password", "", "optional shared secret")
	flags.StringVarP(&fs, "fs", "f", "", "filesystem_name sent in the OPEN request")
	flags.StringVarP(&desc, "desc", "d", "", "free-text description")
	flags.Uint32VarP(&storageDest, "dest", "s", 1, "storage destination (0=NULL,1=LOCAL,2=LUSTRE,3=TSM,4=LUSTRE_TSM)")
	_ = cmd.MarkFlagRequired("node")
	return cmd
}

func stageFile(addr, node, password, fs, desc string, storageDest uint32, srcPath, remotePath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("fsqc: open %s: %w", srcPath, err)
	}
	defer src.Close()

	c, err := client.Connect(addr, node, password)
	if err != nil {
		return err
	}

	f, err := c.Open(fs, remotePath, desc, storageDest)
	if err != nil {
		_ = c.Disconnect()
		return err
	}

	buf := make([]byte, 1<<20)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if werr := f.Write(buf[:n]); werr != nil {
				_ = c.Disconnect()
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = c.Disconnect()
			return fmt.Errorf("fsqc: reading %s: %w", srcPath, err)
		}
	}

	if err := f.Close(); err != nil {
		_ = c.Disconnect()
		return err
	}
	return c.Disconnect()
}
