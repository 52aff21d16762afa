package main

import (
	"ltiuy-backend/cmd/ltiuy-cli/commands"
)

func main() {
	commands.Execute()
}
