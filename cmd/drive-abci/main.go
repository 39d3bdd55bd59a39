package main

import "github.com/blockberries/drive/cmd/drive-abci/cmd"

func main() {
	cmd.Execute()
}
