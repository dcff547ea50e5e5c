package main

import "github.com/dominds/minddrive/cmd"

func main() {
	cmd.Execute()
}
