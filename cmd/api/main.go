package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "propie-api",
		Short: "PropIE property sales API",
		Long: `PropIE API server and maintenance commands.

Configuration is read from the environment (API_ADDR, REPOSITORY_BACKEND,
DATABASE_URL, REDIS_URL, MEILI_URL, MINIO_ENDPOINT, ...).`,
		SilenceUsage: true,
	}
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newSeedCommand())
	cmd.AddCommand(newReindexCommand())
	return cmd
}
