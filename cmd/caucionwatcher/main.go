package main

import (
	"caucion-rate-alerts/internal/cli"
)

func main() {
	cli.Execute()
}
