package main

import "github.com/nfrund/livedash/cmd/livedash/cmd"

func main() {
	cmd.Execute()
}
