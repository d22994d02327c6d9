package envflags

import (
	"os"

	"github.com/urfave/cli/v3"
)

// GetEnvOrFlag returns the command line flag value, or falls back to the environment variable if the flag is empty
func GetEnvOrFlag(cmd *cli.Command, flagName, envName string) string {
	value := cmd.String(flagName)
	if value == "" {
		value = os.Getenv(envName)
	}
	return value
}
