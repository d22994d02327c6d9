package version

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// Version is set at build time with
// -ldflags "-X github.com/paysync/paysync/cmd/version.Version=v1.2.3".
var Version = "dev"

func Print() string {
	return Version
}

func Command() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Shows the paysync version",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Println(Print())
			return nil
		},
	}
}
