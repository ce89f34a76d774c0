// The main package for the reviewtrends executable.
package main

import (
	"github.com/JakeFAU/review-trends/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
