// Command feedtree manages a hierarchy of RSS/Atom subscriptions.
package main

import (
	"os"

	"github.com/alecthomas/kong"
)

// CLI is the command-line grammar.
type CLI struct {
	Globals

	Add     AddCmd     `cmd:"" help:"Subscribe to a feed inside an existing folder."`
	Mkdir   MkdirCmd   `cmd:"" help:"Create a folder and any missing parents."`
	Rm      RmCmd      `cmd:"" help:"Remove a folder or stream and everything below it."`
	Rename  RenameCmd  `cmd:"" help:"Rename a folder or stream."`
	Ls      LsCmd      `cmd:"" help:"Show the hierarchy with unread counts."`
	Items   ItemsCmd   `cmd:"" help:"List the articles of a stream."`
	Read    ReadCmd    `cmd:"" help:"Mark articles as read."`
	Refresh RefreshCmd `cmd:"" help:"Fetch streams now."`
	URLs    URLsCmd    `cmd:"" name:"urls" help:"Print the feed URLs below a path."`
	Export  ExportCmd  `cmd:"" help:"Write the hierarchy as JSON."`
	Import  ImportCmd  `cmd:"" help:"Replace the hierarchy with a JSON export."`
	Serve   ServeCmd   `cmd:"" help:"Keep running and refresh streams periodically."`
}

func main() {
	var cli CLI
	cli.Out = os.Stdout
	ctx := kong.Parse(&cli,
		kong.Name("feedtree"),
		kong.Description("Folders of RSS/Atom feeds with read tracking."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
