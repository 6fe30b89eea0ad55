// Command fsqd is the staging & forwarding daemon: it accepts client
// connections, lands files locally, and drives each through the
// copy/archive state machine.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/GSI-HPC/fsqd/internal/daemon"
	"github.com/GSI-HPC/fsqd/internal/fsqconfig"
	"github.com/GSI-HPC/fsqd/internal/fsqlog"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := fsqconfig.NewDefault()
	var confPath string

	cmd := &cobra.Command{
		Use:   "fsqd <lustre_mount_point>",
		Short: "Hierarchical storage staging and forwarding daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if confPath != "" {
				if err := applyConfigFile(cmd, opts, confPath); err != nil {
					return err
				}
			}
			fsqlog.SetLevel(fsqlog.ParseLevel(opts.Verbose))

			sup, err := daemon.New(opts, args[0])
			if err != nil {
				return err
			}
			return sup.Run(context.Background())
		},
	}

	opts.AddFlags(cmd.Flags())
	cmd.Flags().StringVarP(&confPath, "conf", "c", "", "path to a config file")
	return cmd
}

// applyConfigFile loads path and copies its values onto opts, but only for
// keys the caller did not already set explicitly on the command line —
// flags take precedence over the config file, which takes precedence over
// built-in defaults.
func applyConfigFile(cmd *cobra.Command, opts *fsqconfig.Options, path string) error {
	fileOpts, err := fsqconfig.Load(path)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("localfs") {
		opts.LocalFS = fileOpts.LocalFS
	}
	if !cmd.Flags().Changed("identmap") {
		opts.IdentMap = fileOpts.IdentMap
	}
	if !cmd.Flags().Changed("verbose") {
		opts.Verbose = fileOpts.Verbose
	}
	if !cmd.Flags().Changed("port") {
		opts.Port = fileOpts.Port
	}
	if !cmd.Flags().Changed("sthreads") {
		opts.SThreads = fileOpts.SThreads
	}
	if !cmd.Flags().Changed("qthreads") {
		opts.QThreads = fileOpts.QThreads
	}
	if !cmd.Flags().Changed("tolerr") {
		opts.TolErr = fileOpts.TolErr
	}
	return nil
}
