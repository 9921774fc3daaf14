package main

import "github.com/engramlabs/engram/cmd"

func main() {
	cmd.Execute()
}
