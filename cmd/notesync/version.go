package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"pkt.systems/notesync/internal/version"
)

func newVersionCmd() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if short {
				_, err := fmt.Fprintln(out, version.Current())
				return err
			}
			_, err := fmt.Fprintf(out, "notesync %s\nmodule:     %s\nuser-agent: %s\ngo:         %s %s/%s\n",
				version.Current(), version.Module(), version.UserAgent(),
				runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "print only the version")
	return cmd
}
