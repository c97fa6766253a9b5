package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/flight/internal/config"
	"github.com/conneroisu/flight/internal/encoder"
	"github.com/conneroisu/flight/internal/node"
	"github.com/conneroisu/flight/internal/resolver"
)

var encodeOutput string

var encodeCmd = &cobra.Command{
	Use:     "encode [tree.yml]",
	Aliases: []string{"e"},
	Short:   "Encode a YAML tree into wire rows",
	Long: `Read a declarative tree from a YAML file (or stdin when no file is
given) and write the encoded row stream. Boundaries resolve before the
command exits, so the output always contains every replacement row.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEncode,
}

func init() {
	rootCmd.AddCommand(encodeCmd)

	encodeCmd.Flags().StringVarP(&encodeOutput, "output", "o", "", "write rows to a file instead of stdout")
	encodeCmd.Flags().Var(newModeFlag("streaming"), "mode", "render mode (streaming, eager)")
	encodeCmd.Flags().String("manifest", "", "client component manifest file")
	viper.BindPFlag("render.mode", encodeCmd.Flags().Lookup("mode"))
	viper.BindPFlag("resolver.manifest", encodeCmd.Flags().Lookup("manifest"))
}

func runEncode(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	var source []byte
	if len(args) == 1 {
		source, err = os.ReadFile(args[0])
	} else {
		source, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("reading tree: %w", err)
	}

	tree, err := node.FromYAML(source)
	if err != nil {
		return fmt.Errorf("parsing tree: %w", err)
	}

	registry := resolver.NewRegistry()
	if cfg.Resolver.Manifest != "" {
		manifest, err := resolver.LoadManifest(cfg.Resolver.Manifest)
		if err != nil {
			return fmt.Errorf("loading manifest: %w", err)
		}
		registry.Apply(manifest)
	}

	out := cmd.OutOrStdout()
	if encodeOutput != "" {
		file, err := os.Create(encodeOutput)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	mode := encoder.ModeStreaming
	if cfg.Render.Mode == "eager" {
		mode = encoder.ModeEager
	}

	return encoder.EncodeTo(context.Background(), tree, registry, out, encoder.Options{
		Mode:     mode,
		MaxDepth: cfg.Render.MaxDepth,
		Logger:   log,
	})
}
