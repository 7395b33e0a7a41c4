package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	clientcmd "github.com/ndelacroix/linkstash/cmd/linkstash/client"
	"github.com/ndelacroix/linkstash/cmd/linkstash/serve"
)

func main() {
	app := &cli.App{
		Name:  "linkstash",
		Usage: "Save links from anywhere, keep them yours.",
		Commands: []*cli.Command{
			serve.Cmd(),
			clientcmd.Cmd(),
		},
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	err := app.RunContext(ctx, os.Args)
	if err != nil {
		log.Error().Err(err).Msg("Application failed")
	}
}
