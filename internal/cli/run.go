package cli

import (
	"fmt"
	"io"

	"github.com/jessevdk/go-flags"

	"github.com/dbcrossbar/dbcrossbar-go/internal/logging"
)

// GlobalOptions are the flags accepted before any subcommand name, shared by
// every command.
type GlobalOptions struct {
	Verbose   bool   `long:"verbose" short:"v" description:"enable debug-level logging"`
	LogFormat string `long:"log-format" choice:"text" choice:"color" choice:"json" default:"color" description:"log output format"`
}

// Run parses argv (excluding the program name) and executes the selected
// command, following go/flowctl/main.go's parser-per-process shape. It
// returns the process exit code: 0 on success, nonzero on any error
// (spec.md §6's "Exit codes" requirement).
func Run(argv []string, stderr io.Writer) int {
	opts := &GlobalOptions{LogFormat: "color"}
	app := &App{Options: opts}

	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.ShortDescription = "Copy tabular data between databases, cloud storage, and files"

	addCmd(parser, "cp", "Copy a table or file from one location to another", `
Copy table data (and, if needed, its schema) from a source locator to a
destination locator. The transfer is planned automatically: a direct
remote-to-remote path when the destination driver supports it, a staged
two-hop copy through --temporary storage, or a local streaming fallback.
`, &cmdCp{app: app})

	addCmd(parser, "count", "Count the rows a locator would produce", `
Count the rows a source locator (optionally filtered by --where) would
produce, without transferring any data.
`, &cmdCount{app: app})

	schemaCmd, err := parser.Command.AddCommand("schema", "Work with portable table schemas", "", &struct{}{})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	addCmd(schemaCmd, "conv", "Convert a schema from one locator to another", `
Read a table schema from the source locator and write it to the
destination locator, performing no data transfer.
`, &cmdSchemaConv{app: app})

	addCmd(parser, "features", "List registered drivers, or one driver's capabilities", `
Print the names of every registered driver, or, if a driver name is given,
the features that driver declares support for.
`, &cmdFeatures{app: app})

	configCmd, err := parser.Command.AddCommand("config", "Manage persisted configuration values", "", &struct{}{})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	addCmd(configCmd, "add", "Add or replace a configuration value", "", &cmdConfigAdd{app: app})
	addCmd(configCmd, "rm", "Remove a configuration value", "", &cmdConfigRemove{app: app})

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return 0
		}
		fmt.Fprintln(stderr, logging.FormatError(err))
		return 1
	}
	return 0
}

func addCmd(to interface {
	AddCommand(string, string, string, interface{}) (*flags.Command, error)
}, name, short, long string, data interface{}) *flags.Command {
	cmd, err := to.AddCommand(name, short, long, data)
	if err != nil {
		panic(fmt.Sprintf("cli: failed to register command %q: %v", name, err))
	}
	return cmd
}
