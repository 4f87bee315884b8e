package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/contextpad/internal"
	"github.com/starford/contextpad/internal/models"
	pkgconfig "github.com/starford/contextpad/pkg/config"
)

const defaultConfigPath = "config/config.yaml"

var version = "dev"

type runner func(ctx context.Context, opts ...internal.Option) error

func action(name string, run runner) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		configPath := cmd.String("config")

		cfg := internal.NewDefaultConfig()
		if err := pkgconfig.LoadWithDefaults(configPath, defaultConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		if cmd.IsSet("level") {
			cfg.Session.Level = models.AccessLevel(cmd.Int("level"))
			if err := cfg.Session.Validate(); err != nil {
				return fmt.Errorf("invalid --level: %w", err)
			}
		}

		opts := []internal.Option{
			internal.WithConfig(cfg),
			internal.WithVersion(version),
		}

		if err := run(ctx, opts...); err != nil {
			return fmt.Errorf("%s run error: %w", name, err)
		}

		return nil
	}
}

func main() {
	levelFlag := &cli.IntFlag{
		Name:    "level",
		Usage:   "Access level: 0 anonymous, 1 free, 2 paid (overrides session.level)",
		Sources: cli.EnvVars("CONTEXTPAD_LEVEL"),
	}

	cmd := &cli.Command{
		Name:    "contextpad",
		Usage:   "Writing pad that saves as you type and suggests reference links",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: defaultConfigPath,
				Value:       defaultConfigPath,
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the document backend with link search and verification",
				Action: action("serve", internal.RunServer),
			},
			{
				Name:   "edit",
				Usage:  "Run an editor session over HTTP with a live event stream",
				Flags:  []cli.Flag{levelFlag},
				Action: action("edit", internal.RunEditor),
			},
			{
				Name:   "mcp",
				Usage:  "Expose an editor session to MCP clients over stdio",
				Flags:  []cli.Flag{levelFlag},
				Action: action("mcp", internal.RunMCP),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
