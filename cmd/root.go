package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shroudml/shroud-go/cmd/keygen"
	"github.com/shroudml/shroud-go/cmd/serve"
	"github.com/shroudml/shroud-go/internal/conf"
	"github.com/shroudml/shroud-go/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shroud",
		Short: "Shroud confidential model store",
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	subcommands := []*cobra.Command{
		serve.Command(settings),
		keygen.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if settings.Main.Debug {
			logging.SetLevel(slog.LevelDebug)
		}
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Main.Debug, "debug", "d", viper.GetBool("main.debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Store.ModelsPath, "modelspath", viper.GetString("store.modelspath"), "Storage root for sealed model files")
	rootCmd.PersistentFlags().IntVar(&settings.Store.MaxModelStore, "maxmodelstore", viper.GetInt("store.maxmodelstore"), "Maximum number of stored models, 0 for unbounded")
	rootCmd.PersistentFlags().StringVar(&settings.Sealing.KeyPath, "keypath", viper.GetString("sealing.keypath"), "Path to the sealing key file")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
