package client

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	linkclient "github.com/ndelacroix/linkstash/client"
	"github.com/ndelacroix/linkstash/internal/cmdflags"
)

func Cmd() *cli.Command {
	var credFile string
	return &cli.Command{
		Name:  "client",
		Usage: "Talk to a linkstash server from the command line",
		Flags: []cli.Flag{
			cmdflags.CredentialsFile(&credFile),
		},
		Subcommands: []*cli.Command{
			registerCmd(&credFile),
			loginCmd(&credFile),
			saveCmd(&credFile),
			listCmd(&credFile),
			whoamiCmd(&credFile),
			logoutCmd(&credFile),
		},
	}
}

func registerCmd(credFile *string) *cli.Command {
	server := "localhost:7654"
	var username string
	return &cli.Command{
		Name:  "register",
		Usage: "Create a new account (password is read from stdin)",
		Flags: []cli.Flag{
			cmdflags.Server(&server),
			usernameFlag(&username),
		},
		Action: func(ctx *cli.Context) error {
			password, err := readPassword()
			if err != nil {
				return err
			}
			session := linkclient.NewSession(*credFile, nil)
			if err := session.SignUp(ctx.Context, server, username, password); err != nil {
				return err
			}
			fmt.Fprintln(ctx.App.Writer, "account created, now run: linkstash client login")
			return nil
		},
	}
}

func loginCmd(credFile *string) *cli.Command {
	server := "localhost:7654"
	var username string
	return &cli.Command{
		Name:  "login",
		Usage: "Obtain the signing secret for an account (password is read from stdin)",
		Flags: []cli.Flag{
			cmdflags.Server(&server),
			usernameFlag(&username),
		},
		Action: func(ctx *cli.Context) error {
			password, err := readPassword()
			if err != nil {
				return err
			}
			session := linkclient.NewSession(*credFile, nil)
			if err := session.LogIn(ctx.Context, server, username, password); err != nil {
				return err
			}
			fmt.Fprintf(ctx.App.Writer, "logged in as %v\n", session.Credentials().Username)
			return nil
		},
	}
}

func saveCmd(credFile *string) *cli.Command {
	var title, note string
	return &cli.Command{
		Name:      "save",
		Usage:     "Save a link",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Usage: "Optional title", Destination: &title},
			&cli.StringFlag{Name: "note", Usage: "Optional note", Destination: &note},
		},
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 1 {
				return errors.New("expected exactly one url argument")
			}
			session, err := loadSession(*credFile)
			if err != nil {
				return err
			}
			saved, err := session.SaveLink(ctx.Context, ctx.Args().First(), title, note)
			if err != nil {
				return err
			}
			fmt.Fprintf(ctx.App.Writer, "saved link %v\n", saved.ID)
			return nil
		},
	}
}

func listCmd(credFile *string) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List saved links, newest first",
		Action: func(ctx *cli.Context) error {
			session, err := loadSession(*credFile)
			if err != nil {
				return err
			}
			links, err := session.Links(ctx.Context)
			if err != nil {
				return err
			}
			for _, l := range links {
				line := l.URL
				if l.Title != "" {
					line = fmt.Sprintf("%v (%v)", line, l.Title)
				}
				fmt.Fprintf(ctx.App.Writer, "%v\t%v\n", l.ID, line)
			}
			return nil
		},
	}
}

func whoamiCmd(credFile *string) *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the logged-in account, verifying the credentials still work",
		Action: func(ctx *cli.Context) error {
			session, err := loadSession(*credFile)
			if err != nil {
				return err
			}
			id, username, err := session.Me(ctx.Context)
			if err != nil {
				return err
			}
			fmt.Fprintf(ctx.App.Writer, "%v (user %v) @ %v\n", username, id, session.Credentials().Server)
			return nil
		},
	}
}

func logoutCmd(credFile *string) *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Forget the stored credentials",
		Action: func(ctx *cli.Context) error {
			session := linkclient.NewSession(*credFile, nil)
			if err := session.Load(); err != nil {
				return err
			}
			return session.Clear()
		},
	}
}

func usernameFlag(out *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "username",
		Aliases:     []string{"u", "user"},
		Usage:       "Account username",
		Destination: out,
		Required:    true,
	}
}

func loadSession(credFile string) (*linkclient.Session, error) {
	session := linkclient.NewSession(credFile, nil)
	if err := session.Load(); err != nil {
		return nil, err
	}
	if !session.IsAuthenticated() {
		return nil, errors.New("not logged in, run: linkstash client login")
	}
	return session, nil
}

func readPassword() (string, error) {
	sc := bufio.NewScanner(os.Stdin)
	if !sc.Scan() {
		return "", sc.Err()
	}
	password := strings.TrimSpace(sc.Text())
	if len(password) == 0 {
		return "", errors.New("missing password from stdin")
	}
	return password, nil
}
