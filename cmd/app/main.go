package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/ansuz/internal"
	pkgconfig "github.com/starford/ansuz/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func main() {
	cmd := &cli.Command{
		Name:  "ansuz",
		Usage: "Archive WhatsApp chat exports: fetch from Drive, extract, anonymize, stage as JSON, and sync to a Strapi CMS",
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
				Name:  "scrape",
				Usage: "Download chat archives from the configured Drive folder and extract them",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Watch the download directory and extract archives as they arrive",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					return internal.Scrape(ctx, cmd.Bool("watch"), internal.WithConfig(cfg))
				},
			},
			{
				Name:  "stage",
				Usage: "Parse extracted conversations, anonymize authors, and write staging JSON",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					return internal.Stage(ctx, internal.WithConfig(cfg))
				},
			},
			{
				Name:  "upload",
				Usage: "Push staged batches to the CMS",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "groups", Aliases: []string{"g"}, Usage: "Upload groups only"},
					&cli.BoolFlag{Name: "msgs", Aliases: []string{"m"}, Usage: "Upload messages only"},
					&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "Upload groups then messages"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					groups, msgs := flagsPair(cmd)
					return internal.Upload(ctx, groups, msgs, internal.WithConfig(cfg))
				},
			},
			{
				Name:  "delete",
				Usage: "Delete remote data, messages before groups; re-run until counts reach zero",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "groups", Aliases: []string{"g"}, Usage: "Delete groups only"},
					&cli.BoolFlag{Name: "msgs", Aliases: []string{"m"}, Usage: "Delete messages only"},
					&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "Delete messages then groups"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					groups, msgs := flagsPair(cmd)
					return internal.Delete(ctx, groups, msgs, internal.WithConfig(cfg))
				},
			},
			{
				Name:      "reveal",
				Usage:     "Decrypt an anonymized author token back to the original name",
				ArgsUsage: "<token>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return fmt.Errorf("expected exactly one token argument")
					}
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					author, err := internal.Reveal(cmd.Args().First(), internal.WithConfig(cfg))
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.Writer, author)
					return nil
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// flagsPair maps the upload/delete flag set to (groups, msgs). --all and
// no flags both mean everything.
func flagsPair(cmd *cli.Command) (groups, msgs bool) {
	groups = cmd.Bool("groups")
	msgs = cmd.Bool("msgs")
	if cmd.Bool("all") || (!groups && !msgs) {
		return true, true
	}
	return groups, msgs
}
