package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/gyeh/hdprod/internal/config"
)

var (
	cfg        = config.Default()
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "hdprod",
	Short: "Dialysis production pricing and reporting",
	Long: "Keeps the tariff catalog, records per-patient daily production priced from it, " +
		"converts legacy flat-rate production and exports daily reports.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			return nil
		}
		return cfg.LoadFromFile(configPath)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfg.DSN, "dsn", os.Getenv("HDPROD_DB_URL"), "Postgres connection string (or set HDPROD_DB_URL)")
	pf.StringVar(&cfg.RedisAddr, "redis", os.Getenv("HDPROD_REDIS_ADDR"), "Redis address for the tariff cache (or set HDPROD_REDIS_ADDR); empty disables it")
	pf.StringVar(&configPath, "config", "", "Optional YAML config file")
	pf.StringVar(&cfg.LogFormat, "log-format", "text", "Log format: text or json")
	pf.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&cfg.Actor, "actor", os.Getenv("USER"), "Name recorded as created_by")
}
