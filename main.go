package main

import "github.com/agusx1211/amux/internal/cli"

func main() {
	cli.Execute()
}
