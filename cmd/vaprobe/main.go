package main

import "github.com/bryanchriswhite/VAProbe/cmd/vaprobe/commands"

func main() {
	commands.Execute()
}
