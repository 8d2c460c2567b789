package main

import "listing-optimizer/cli"

func main() {
	cli.Execute()
}
