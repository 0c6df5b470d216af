package main

import "github.com/savaki/jonbot/cmd/jonbot/cmd"

func main() {
	cmd.Execute()
}
