package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropkit/dropkit/internal/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Get()
			fmt.Printf("dropkit %s\n", version.GetShortVersion())
			fmt.Printf("  go:       %s\n", info.GoVersion)
			fmt.Printf("  platform: %s\n", info.Platform)
			if info.BuildDate != "" {
				fmt.Printf("  built:    %s\n", info.BuildDate)
			}
		},
	}
}
