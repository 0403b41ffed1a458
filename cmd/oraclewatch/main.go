package main

import "oracle-miss-alerts/internal/cli"

func main() {
	cli.Execute()
}
