package main

import "edgelink/cmd/edgelink/commands"

func main() {
	commands.Execute()
}
