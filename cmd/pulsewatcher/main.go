package main

import "market-pulse-alerts/internal/cli"

func main() {
	cli.Execute()
}
