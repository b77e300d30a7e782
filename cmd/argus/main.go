package main

import (
	"github.com/jeremyandrews/argus/cmd/cmd"
)

func main() {
	cmd.Execute()
}
