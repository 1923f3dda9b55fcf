package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"venueboard/internal/catalog"
	"venueboard/internal/config"
)

var errCatalogDisabled = errors.New("catalog credentials not configured")

func (a *app) searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the music catalog for tracks",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
		},
		Before: a.loadConfig(config.ScopeCatalog),
		Action: a.search,
	}
}

func (a *app) recommendCommand() *cli.Command {
	return &cli.Command{
		Name:      "recommend",
		Usage:     "Recommend tracks from a query or a seed track",
		ArgsUsage: "[query]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "track-id", Usage: "Seed track id"},
			&cli.StringFlag{Name: "artist", Usage: "Seed track artist"},
			&cli.StringFlag{Name: "title", Usage: "Seed track title"},
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
		},
		Before: a.loadConfig(config.ScopeCatalog),
		Action: a.recommend,
	}
}

func (a *app) catalogClient() (*catalog.Client, error) {
	if !a.cfg.CatalogEnabled() {
		return nil, errCatalogDisabled
	}
	return newCatalogClient(a.cfg, nil), nil
}

func (a *app) search(ctx context.Context, cmd *cli.Command) error {
	client, err := a.catalogClient()
	if err != nil {
		return err
	}
	query := strings.Join(cmd.Args().Slice(), " ")
	return printResult(cmd.Root().Writer, client.Search(ctx, query), cmd.Bool("json"))
}

func (a *app) recommend(ctx context.Context, cmd *cli.Command) error {
	client, err := a.catalogClient()
	if err != nil {
		return err
	}

	if cmd.IsSet("track-id") || cmd.IsSet("artist") || cmd.IsSet("title") {
		seed := &catalog.Track{
			ID:     cmd.String("track-id"),
			Artist: cmd.String("artist"),
			Title:  cmd.String("title"),
		}
		return printResult(cmd.Root().Writer, client.RecommendForTrack(ctx, seed), cmd.Bool("json"))
	}

	query := strings.Join(cmd.Args().Slice(), " ")
	return printResult(cmd.Root().Writer, client.Recommend(ctx, query), cmd.Bool("json"))
}

func printResult(w io.Writer, r catalog.Result, asJSON bool) error {
	if r.Err != nil {
		return fmt.Errorf("%s: %w", r.Reason, r.Err)
	}

	tracks := r.List()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(tracks)
	}

	if !r.OK() {
		fmt.Fprintf(w, "no lookup performed (%s)\n", r.Reason)
		return nil
	}
	if len(tracks) == 0 {
		fmt.Fprintln(w, "no tracks found")
		return nil
	}
	for i, t := range tracks {
		fmt.Fprintf(w, "%2d. %s by %s [%s]\n", i+1, t.Title, t.Artist, t.ID)
	}
	return nil
}
