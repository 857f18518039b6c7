package main

import (
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/ghsync/cmd/ghsync/commands"
	ferrors "git.home.luguber.info/inful/ghsync/internal/foundation/errors"
	"git.home.luguber.info/inful/ghsync/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cli := &commands.CLI{}
	parser, err := kong.New(cli,
		kong.Name("ghsync"),
		kong.Description("Keep a local folder and a Git branch in sync."),
		kong.UsageOnError(),
		commands.Vars(version.String()),
	)
	if err != nil {
		return ferrors.NewCLIErrorAdapter(false, nil).HandleError(err)
	}

	ctx, err := parser.Parse(args)
	if err != nil {
		parser.Errorf("%s", err)
		return 1
	}

	global := cli.Global(os.Stdout)
	err = ctx.Run(global, cli)
	return ferrors.NewCLIErrorAdapter(cli.Verbose, global.Logger).HandleError(err)
}
