package cmd

import (
	"SyncFM/config"
	"SyncFM/logger"
	"SyncFM/server"

	"github.com/spf13/cobra"
)

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Run the relay hub",
	Long:  `Runs the websocket relay hub tabs use as their broadcast bus when they run as separate processes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		logger.InitLogger(logger.Config{
			Level:      logger.LogLevel(cfg.LogLevel),
			OutputPath: cfg.LogPath,
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     7,
		})
		return server.Start(cfg)
	},
}

func init() {
	rootCmd.AddCommand(hubCmd)
}
