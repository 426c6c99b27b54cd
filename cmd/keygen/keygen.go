// Package keygen generates the sealing key file ahead of first use.
package keygen

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shroudml/shroud-go/internal/conf"
	"github.com/shroudml/shroud-go/internal/sealing"
)

// Command returns the keygen subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new sealing key file",
		Long: "Generate a 256-bit sealing key and write it to the configured key path " +
			"with owner-only permissions. Fails if the file already exists.",
		RunE: func(cmd *cobra.Command, args []string) error {
			keyPath := settings.Sealing.KeyPath
			if _, err := os.Stat(keyPath); err == nil {
				return fmt.Errorf("sealing key already exists at %s, refusing to overwrite", keyPath)
			}
			if _, err := sealing.GenerateKey(keyPath); err != nil {
				return err
			}
			fmt.Println("Sealing key written to:", keyPath)
			return nil
		},
	}
	return cmd
}
