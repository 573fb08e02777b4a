package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/medrec/internal"
	"github.com/starford/medrec/internal/apperr"
	pkgconfig "github.com/starford/medrec/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

// credentialed wraps a front end that needs a signed-in user.
func credentialed(run func(ctx context.Context, user, pass string, opts ...internal.Option) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		err = run(ctx, cmd.String("username"), cmd.String("password"), internal.WithConfig(cfg))
		if errors.Is(err, apperr.ErrUnauthorized) {
			return errors.New("invalid credentials")
		}
		return err
	}
}

func credentialFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "username",
			Aliases:  []string{"u"},
			Usage:    "Account name from the credential store",
			Required: true,
			Sources:  cli.EnvVars("MEDREC_USERNAME"),
		},
		&cli.StringFlag{
			Name:     "password",
			Aliases:  []string{"p"},
			Usage:    "Account password",
			Required: true,
			Sources:  cli.EnvVars("MEDREC_PASSWORD"),
		},
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "medrec",
		Usage:   "Clinical visit records over flat files with role-based access",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API with live reload",
				Action: serve,
			},
			{
				Name:   "console",
				Usage:  "Interactive menu for a signed-in user",
				Flags:  credentialFlags(),
				Action: credentialed(internal.RunConsole),
			},
			{
				Name:   "stats",
				Usage:  "Print the statistics report as YAML",
				Flags:  credentialFlags(),
				Action: credentialed(internal.RunStats),
			},
			{
				Name:  "mcp",
				Usage: "Serve read-only MCP tools on stdio",
				Flags: credentialFlags(),
				Action: credentialed(func(ctx context.Context, user, pass string, opts ...internal.Option) error {
					return internal.RunMCP(ctx, user, pass, version, opts...)
				}),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
