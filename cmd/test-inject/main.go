// Command test-inject types or pastes a test transcript after a short
// countdown. Focus a text editor before the countdown finishes.
//
// Usage:
//
//	go run ./cmd/test-inject [-method type|paste] [-notebook path]
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/chaz8081/gostt-relay/internal/inject"
)

func main() {
	method := flag.String("method", "type", "output method: type or paste")
	notebook := flag.String("notebook", "", "append to this notebook file instead of typing")
	flag.Parse()

	text := "Hello from gostt-relay!"

	var sink inject.Sink = inject.NewTyper(*method, true)
	if *notebook != "" {
		nb, err := inject.NewNotebook(*notebook)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		sink = nb
	} else {
		fmt.Printf("Will deliver %q using %q method in 3 seconds...\n", text, *method)
		fmt.Println("Focus a text editor now!")
		for i := 3; i > 0; i-- {
			fmt.Printf("%d...\n", i)
			time.Sleep(time.Second)
		}
	}

	if err := sink.Deliver(text); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("\nDone!")
}
