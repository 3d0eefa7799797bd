package main

import (
	"os"

	"github.com/josephlewis42/jobsh/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
