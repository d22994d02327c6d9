package main

import (
	"os"
	"time"
	_ "time/tzdata" // bundles timezone data, required for Windows without Go
)

func main() {
	// Every timestamp is stored and compared in UTC, whatever the host's
	// /etc/localtime says.
	if err := os.Setenv("TZ", "UTC"); err != nil {
		panic(err)
	}
	time.Local = time.UTC

	execute()
}
