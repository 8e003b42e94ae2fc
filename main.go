package main

import "github.com/lbt-build/lbt/cmd"

func main() {
	cmd.Execute()
}
