package main

import "tradewatch/internal/cli"

func main() {
	cli.Execute()
}
