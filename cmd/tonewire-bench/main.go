package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tonewirelabs/tonewire-core/internal/benchmark"
)

func main() {
	var text string
	flag.StringVar(&text, "text", "", "Text to benchmark (default: built-in pangram)")
	flag.Parse()

	results, err := benchmark.Run(text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "benchmark failed: %v\n", err)
		os.Exit(1)
	}

	benchmark.WriteTable(os.Stdout, results)
}
