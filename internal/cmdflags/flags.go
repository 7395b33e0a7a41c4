package cmdflags

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
)

func StorePath(out *string) cli.Flag {
	if len(*out) == 0 {
		*out = "linkstash.db"
	}
	return &cli.StringFlag{
		Name:        "store",
		Aliases:     []string{"s"},
		Usage:       "Path to the sqlite database holding users and links",
		Value:       *out,
		Destination: out,
	}
}

func Bind(out *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "bind",
		Aliases:     []string{"b"},
		Usage:       "Address to bind the API server to",
		Value:       *out,
		Destination: out,
	}
}

func CredentialsFile(out *string) cli.Flag {
	if len(*out) == 0 {
		*out = defaultCredentialsFile()
	}
	return &cli.StringFlag{
		Name:        "credentials",
		Aliases:     []string{"c"},
		Usage:       "Path to the file holding the saved login credentials",
		Value:       *out,
		Destination: out,
	}
}

func Server(out *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "server",
		Usage:       "Base url of the linkstash server",
		Value:       *out,
		Destination: out,
	}
}

func defaultCredentialsFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "linkstash-credentials.json"
	}
	return filepath.Join(dir, "linkstash", "credentials.json")
}
