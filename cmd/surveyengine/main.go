package main

import (
	"os"

	"github.com/careloop/surveyengine/cmd/surveyengine/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
