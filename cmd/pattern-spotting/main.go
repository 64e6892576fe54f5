package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/mseitzer/pattern-spotting/internal/ocr"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

type command struct {
	name  string
	usage string
	run   func(args []string) error
}

var commands = []command{
	{"serve", "Run the MCP server on stdin/stdout", runServe},
	{"query", "Search the corpus with an image", runQuery},
	{"extract", "Extract and store feature maps of an image folder", runExtract},
	{"build", "Build the descriptor matrix from stored feature maps", runBuild},
	{"evaluate", "Compute mAP over labeled query crops", runEvaluate},
	{"benchmark", "Time queries over labeled query crops", runBenchmark},
	{"catalog", "Manage the image source catalog", runCatalog},
}

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "--version", "-v", "version":
		fmt.Printf("pattern-spotting %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		fmt.Printf("  Tesseract:  %s\n", ocr.Version())
		return
	case "--help", "-h", "help":
		printHelp()
		return
	}

	for _, c := range commands {
		if c.name == os.Args[1] {
			err := c.run(os.Args[2:])
			if errors.Is(err, flag.ErrHelp) {
				return
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "pattern-spotting %s: %v\n", c.name, err)
				os.Exit(1)
			}
			return
		}
	}
	fmt.Fprintf(os.Stderr, "pattern-spotting: unknown command %q\n\n", os.Args[1])
	printHelp()
	os.Exit(2)
}

func printHelp() {
	fmt.Println("pattern-spotting - find recurring visual patterns in an image collection")
	fmt.Println()
	fmt.Println("Usage: pattern-spotting <command> [options] [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	for _, c := range commands {
		fmt.Printf("  %-10s %s\n", c.name, c.usage)
	}
	fmt.Printf("  %-10s %s\n", "version", "Print version information")
	fmt.Println()
	fmt.Println("Run 'pattern-spotting <command> -h' for the options of a command.")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  PATTERN_SPOTTING_LOG_LEVEL=debug    Override the configured log level")
	fmt.Println()
	fmt.Println("The serve command communicates via MCP protocol over stdin/stdout.")
	fmt.Println("Configure it in your MCP client with: pattern-spotting serve -config <file>")
}
