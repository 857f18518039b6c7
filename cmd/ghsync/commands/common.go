package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/ghsync/internal/config"
	"git.home.luguber.info/inful/ghsync/internal/observability"
	"git.home.luguber.info/inful/ghsync/internal/ui"
)

// Global is shared state handed to every subcommand.
type Global struct {
	Logger  *slog.Logger
	Printer *ui.Printer
	Out     io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"${default_config}" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Start  StartCmd  `cmd:"" help:"Start the sync daemon in the foreground"`
	Stop   StopCmd   `cmd:"" help:"Stop a running sync daemon"`
	Status StatusCmd `cmd:"" help:"Show daemon, sync and repository status"`
	Push   PushCmd   `cmd:"" help:"Pull remote changes, then commit and push local ones"`
	Pull   PullCmd   `cmd:"" help:"Pull remote changes"`
	Cfg    ConfigCmd `cmd:"" name:"config" help:"Show or update the configuration"`
	Logs   LogsCmd   `cmd:"" help:"Show recent sync history"`
	Auth   AuthCmd   `cmd:"" help:"Configure the SSH key used for the remote"`

	logger *slog.Logger
}

// AfterApply runs after flag parsing; setup logging once.
func (c *CLI) AfterApply() error {
	logger, _, err := observability.NewLogger(observability.LoggerOptions{Level: c.level()})
	if err != nil {
		return err
	}
	c.logger = logger
	slog.SetDefault(logger)
	return nil
}

func (c *CLI) level() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// Global returns the shared state for subcommands writing to out.
func (c *CLI) Global(out io.Writer) *Global {
	if out == nil {
		out = os.Stdout
	}
	logger := c.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Global{Logger: logger, Printer: ui.NewPrinter(out), Out: out}
}

// Vars are the kong interpolation variables used by the CLI struct.
func Vars(version string) kong.Vars {
	return kong.Vars{
		"version":        version,
		"default_config": config.DefaultPath(),
	}
}

// loadConfig loads and validates the configuration for commands that talk
// to the remote.
func loadConfig(root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateForSync(); err != nil {
		return nil, err
	}
	return cfg, nil
}
