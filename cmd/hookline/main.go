package main

import "github.com/delaney/hookline/cmd/hookline/commands"

func main() {
	commands.Execute()
}
