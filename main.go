package main

import (
	"os"

	"github.com/Aamir1055/BrokerEye-sub005/internal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}