package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"

	"github.com/lumenpress/lumenpress/internal/app"
	"github.com/lumenpress/lumenpress/internal/config"
	"github.com/lumenpress/lumenpress/internal/logging"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server. Settings come from the YAML config file, then from
flags or environment variables in the form LUMEN_<flag> (e.g. LUMEN_STORAGE_DRIVER=redis).`,
		PreRunE: bindFlags,
		RunE:    runServe,
	}
	migrateCmd = &cobra.Command{
		Use:     "migrate",
		Short:   "Create or update the kv_entries table for the database driver",
		PreRunE: bindFlags,
		RunE:    runMigrate,
	}
)

func init() {
	cobra.OnInitialize(initEnv)

	for _, cmd := range []*cobra.Command{serveCmd, migrateCmd} {
		flags := cmd.Flags()
		flags.String("addr", "", "listen address (e.g. :8080)")
		flags.String("public-dir", "", "directory with the static front-end")
		flags.String("storage-driver", "", "storage driver: file, redis, database, memory")
		flags.String("data-dir", "", "directory for the file driver")
		flags.String("key-prefix", "", "namespace prepended to store keys")
		flags.String("log-level", "", "log level: trace, debug, info, warn, error")
	}
}

// initEnv loads .env files and maps LUMEN_* variables onto flags.
func initEnv() {
	config.LoadDotEnv()

	viper.SetEnvPrefix("lumen")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func bindFlags(cmd *cobra.Command, _ []string) error {
	return viper.BindPFlags(cmd.Flags())
}

// loadConfig resolves the config path and reads the configuration with overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	configFlag, _ := cmd.Flags().GetString("config")
	path := config.ResolveConfigPath(configFlag)
	if !config.ConfigExists(path) {
		log.Debugf("config file %s not found, using defaults", path)
	}
	return config.Load(path, config.Overrides{
		Addr:          viper.GetString("addr"),
		PublicDir:     viper.GetString("public-dir"),
		StorageDriver: viper.GetString("storage-driver"),
		DataDir:       viper.GetString("data-dir"),
		KeyPrefix:     viper.GetString("key-prefix"),
		LogLevel:      viper.GetString("log-level"),
	})
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return app.RunServer(ctx, cfg)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	if errMigrate := app.Migrate(cmd.Context(), cfg); errMigrate != nil {
		return errMigrate
	}
	log.Info("migration complete")
	return nil
}
