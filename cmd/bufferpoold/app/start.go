package app

import (
	"github.com/spf13/cobra"

	"github.com/kvarch/bufferpoold/src/app"
)

func initStart() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Starts the buffer pool admin server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			entrypoint := &app.BufferPoolEntrypoint{
				ConfigPath: rootCmd.Options.ConfigPath,
			}

			return app.Run(cmd.Context(), entrypoint)
		},
	})
}
