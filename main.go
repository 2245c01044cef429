package main

import (
	"github.com/ColonelBlimp/stepfit/cmd"
	"github.com/ColonelBlimp/stepfit/internal/recovery"
)

func main() {
	defer recovery.HandlePanic()
	cmd.Execute()
}
