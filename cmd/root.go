package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chrisdamba/foodmarket/internal/models"
)

var (
	cfgFile string
	cfg     *models.Config
)

var rootCmd = &cobra.Command{
	Use:   "foodmarket",
	Short: "Client-side reliability and estimation tools for the food marketplace",
	Long: `foodmarket bundles the client-side layer of the marketplace: delivery-time
confidence bands, the substitution engine used at checkout, the undoable
moderation console and the best-effort audit write queue.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = models.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		return configureLogging(cfg)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./foodmarket.yaml)")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "text", "Log format: text or json")
	flags.String("output-format", "console", "Output format: console, json or parquet")
	flags.String("output-path", "", "Base directory for json and parquet output")
	flags.Bool("kafka-enabled", false, "Publish audit records and decisions to Kafka")
	flags.String("kafka-broker-list", "localhost:9092", "Kafka broker list")
	flags.String("postgres-dsn", "", "Postgres connection string")
	flags.String("backend-url", "", "Marketplace backend base URL")

	for key, flag := range map[string]string{
		"log_level":         "log-level",
		"log_format":        "log-format",
		"output.format":     "output-format",
		"output.path":       "output-path",
		"kafka.enabled":     "kafka-enabled",
		"kafka.broker_list": "kafka-broker-list",
		"postgres.dsn":      "postgres-dsn",
		"backend.base_url":  "backend-url",
	} {
		cobra.CheckErr(viper.BindPFlag(key, flags.Lookup(flag)))
	}
}

// configureLogging applies the configured level and format to the standard
// logrus logger and routes the stdlib log package through it.
func configureLogging(cfg *models.Config) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)

	switch cfg.LogFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unsupported log format: %s", cfg.LogFormat)
	}
	log.SetOutput(logrus.StandardLogger().Writer())
	return nil
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
