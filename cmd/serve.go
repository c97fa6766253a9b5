package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/flight/internal/config"
	"github.com/conneroisu/flight/internal/node"
	"github.com/conneroisu/flight/internal/resolver"
	"github.com/conneroisu/flight/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the flight render server",
	Long: `Start the HTTP server. GET / answers with rendered HTML, or with
the raw row stream when the request accepts text/x-component. POST
/stream renders a named page as a resumable stream, and GET /ws pushes
rows over a websocket as boundaries resolve.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "localhost", "host to bind to")
	serveCmd.Flags().IntP("port", "p", 8120, "port to listen on")
	serveCmd.Flags().String("manifest", "", "client component manifest file")
	serveCmd.Flags().Bool("watch", false, "reload the manifest on change")
	serveCmd.Flags().Var(newModeFlag("streaming"), "mode", "render mode (streaming, eager)")

	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("resolver.manifest", serveCmd.Flags().Lookup("manifest"))
	viper.BindPFlag("resolver.watch", serveCmd.Flags().Lookup("watch"))
	viper.BindPFlag("render.mode", serveCmd.Flags().Lookup("mode"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := resolver.NewRegistry()
	if cfg.Resolver.Manifest != "" {
		manifest, err := resolver.LoadManifest(cfg.Resolver.Manifest)
		if err != nil {
			return fmt.Errorf("loading manifest: %w", err)
		}
		registry.Apply(manifest)
		log.Info(ctx, "manifest loaded",
			"path", cfg.Resolver.Manifest, "components", registry.Count())

		if cfg.Resolver.Watch {
			watcher, err := resolver.WatchManifest(ctx, cfg.Resolver.Manifest, registry, log)
			if err != nil {
				return fmt.Errorf("watching manifest: %w", err)
			}
			defer watcher.Close()
		}
	}

	srv, err := server.New(cfg, registry, log)
	if err != nil {
		return err
	}
	srv.RegisterPage("index", statusPage(registry))

	return srv.Start(ctx)
}

// statusPage is the built-in index: a small overview of the registry so
// a fresh install has something to render before any pages are wired up.
func statusPage(registry *resolver.Registry) server.PageBuilder {
	return func(_ context.Context, _ *node.Props) (*node.Node, error) {
		all := registry.GetAll()
		ids := make([]string, 0, len(all))
		for id := range all {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		items := make([]*node.Node, 0, len(ids))
		for _, id := range ids {
			items = append(items, node.Host("li", node.NewProps(),
				node.Text(id)).WithKey(id))
		}

		var listing *node.Node
		if len(items) == 0 {
			listing = node.Host("p", node.NewProps(),
				node.Text("No client components registered."))
		} else {
			listing = node.Host("ul", node.NewProps(), items...)
		}

		return node.Host("html", node.NewProps().Set("lang", "en"),
			node.Host("head", node.NewProps(),
				node.Host("title", node.NewProps(), node.Text("flight"))),
			node.Host("body", node.NewProps(),
				node.Host("h1", node.NewProps(), node.Text("flight")),
				listing,
			),
		), nil
	}
}
