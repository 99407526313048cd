package main

import "github.com/IlliaDrahun/multichain/cmd/txctl/cmd"

func main() {
	cmd.Execute()
}
