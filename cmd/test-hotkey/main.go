// Command test-hotkey prints the actions produced by the hotkeys in the
// relay config. Press Ctrl+C to exit.
//
// Usage:
//
//	go run ./cmd/test-hotkey [-config path] [-mode hold|toggle]
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/gostt-relay/internal/config"
	"github.com/chaz8081/gostt-relay/internal/hotkey"
)

func main() {
	path := flag.String("config", config.DefaultConfigPath(), "config file to read bindings from")
	mode := flag.String("mode", "", "override hotkeys.mode")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v; using default bindings\n", err)
		cfg = config.Default()
	}
	hk := cfg.Hotkeys
	if *mode != "" {
		hk.Mode = *mode
	}

	listener := hotkey.NewListener(hotkey.Bindings{
		Mode:   hk.Mode,
		Record: config.ParseKeys(hk.Toggle),
		Stop:   config.ParseKeys(hk.Stop),
		Submit: config.ParseKeys(hk.Submit),
		Clear:  config.ParseKeys(hk.Clear),
	})

	fmt.Printf("mode:   %s\n", hk.Mode)
	for _, b := range []struct{ name, combo string }{
		{"record", hk.Toggle}, {"stop", hk.Stop}, {"submit", hk.Submit}, {"clear", hk.Clear},
	} {
		if b.combo == "" {
			b.combo = "(unbound)"
		}
		fmt.Printf("%-7s %s\n", b.name+":", b.combo)
	}
	fmt.Println("Press Ctrl+C to exit.")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		listener.Stop()
	}()

	go func() {
		start := time.Now()
		for ev := range listener.Events() {
			fmt.Printf("[%8.3fs] %s\n", time.Since(start).Seconds(), ev.Action)
		}
	}()

	listener.Start()
	fmt.Println("Stopped.")
}
