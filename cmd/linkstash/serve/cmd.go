package serve

import (
	"github.com/urfave/cli/v2"

	"github.com/ndelacroix/linkstash/internal/cmdflags"
	"github.com/ndelacroix/linkstash/internal/httpserver"
	"github.com/ndelacroix/linkstash/store"
	"github.com/ndelacroix/linkstash/store/api"
)

func Cmd() *cli.Command {
	bindAddr := "localhost:7654"
	var storePath string
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the linkstash API server",
		Flags: []cli.Flag{
			cmdflags.Bind(&bindAddr),
			cmdflags.StorePath(&storePath),
		},
		Action: func(ctx *cli.Context) error {
			st, err := store.Open(ctx.Context, storePath)
			if err != nil {
				return err
			}
			defer st.Close()
			return httpserver.Serve(ctx.Context, bindAddr, api.AsHandler(st))
		},
	}
}
