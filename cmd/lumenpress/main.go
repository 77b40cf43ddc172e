// Command lumenpress serves the blog resource API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var (
	rootCmd = &cobra.Command{
		Use:   "lumenpress",
		Short: "Blog and CMS resource API",
		Long: fmt.Sprintf(`lumenpress (%s)

Serves CRUD over the blog's resources (articles, comments, settings, ...),
each stored as one JSON value in a file, Redis or SQL key-value store.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of lumenpress",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("lumenpress %s\n", Version)
		},
	}
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(hashPasswordCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("config", "", "path to the YAML config file (default config.yaml, or LUMEN_CONFIG)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
