package main

import "github.com/shizukutanaka/resalloc/cmd/resalloc/commands"

func main() {
	commands.Execute()
}
