package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/flight/internal/config"
	"github.com/conneroisu/flight/internal/decoder"
	"github.com/conneroisu/flight/internal/resolver"
)

var decodeOutput string

var decodeCmd = &cobra.Command{
	Use:     "decode [stream.txt]",
	Aliases: []string{"d"},
	Short:   "Reconstruct HTML from a wire row stream",
	Long: `Read a row stream from a file (or stdin when no file is given),
reconstruct the tree, and write the rendered HTML. Malformed rows are
skipped with a warning; references to rows the stream never delivered
render as empty.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)

	decodeCmd.Flags().StringVarP(&decodeOutput, "output", "o", "", "write HTML to a file instead of stdout")
	decodeCmd.Flags().String("manifest", "", "client component manifest file")
	viper.BindPFlag("resolver.manifest", decodeCmd.Flags().Lookup("manifest"))
}

func runDecode(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	var source io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		file, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer file.Close()
		source = file
	}

	registry := resolver.NewRegistry()
	if cfg.Resolver.Manifest != "" {
		manifest, err := resolver.LoadManifest(cfg.Resolver.Manifest)
		if err != nil {
			return fmt.Errorf("loading manifest: %w", err)
		}
		registry.Apply(manifest)
	}

	d := decoder.New(decoder.Options{Resolver: registry, Logger: log})
	if err := d.Consume(source); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}

	html, err := d.HTML()
	if err != nil {
		return fmt.Errorf("rendering: %w", err)
	}

	out := cmd.OutOrStdout()
	if decodeOutput != "" {
		file, err := os.Create(decodeOutput)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	_, err = io.WriteString(out, html)

	return err
}
