package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tiffin-tracker-backend/config"
	"tiffin-tracker-backend/internal/db"
	"tiffin-tracker-backend/internal/logger"
)

var (
	configPath string
	envFile    string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tiffind",
	Short: "Tiffin tracker backend and daily reminder dispatcher",
	Long: `tiffind serves the tiffin tracker API and sends the daily web push
reminder to users who have not logged their tiffins yet.

  serve  - run the HTTP API and, if enabled, the hourly reminder schedule
  remind - run one reminder pass now and print its summary`,
	SilenceUsage: true,
}

func init() {
	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "./config/config.yaml" // Default path for local development
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfig, "path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file loaded before the configuration")

	rootCmd.AddCommand(serveCmd, remindCmd)
}

// app is what every subcommand needs before it can start.
type app struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB
}

// bootstrap loads and validates the configuration, builds the logger and
// opens the database. Missing VAPID keys fail here before any work starts.
func bootstrap() (*app, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	log.Info("configuration loaded", zap.String("path", configPath))

	gormDB, err := db.Init(&cfg.Database, cfg.Log.GormMode, log)
	if err != nil {
		log.Error("failed to initialize database", zap.Error(err))
		return nil, err
	}
	return &app{cfg: cfg, log: log, db: gormDB}, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
	_ = a.log.Sync()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
