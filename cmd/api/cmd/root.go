package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tutorhub/server/internal/config"
	"github.com/tutorhub/server/internal/logutil"
)

var envFiles []string

var rootCmd = &cobra.Command{
	Use:   "tutorhub",
	Short: "TutorHub API server",
	Long: `Accounts and sessions for students and teachers.
Running without a subcommand starts the HTTP server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Existing environment variables win over .env values.
		for _, f := range envFiles {
			_ = godotenv.Load(f)
		}
		logutil.Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env", "server/.env"}, "dotenv files to load before reading configuration")
}

// loadConfig reads and validates the configuration from the environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logutil.Setup(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}
