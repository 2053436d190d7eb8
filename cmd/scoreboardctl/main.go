package main

import "github.com/okian/scoreboard/internal/cli"

func main() {
	cli.Execute()
}
