package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/chaz8081/gostt-relay/internal/app"
	"github.com/chaz8081/gostt-relay/internal/config"
	"github.com/chaz8081/gostt-relay/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/gostt-relay/config.yaml)")
	listDevices := flag.Bool("list-devices", false, "list capture devices for the configured backend and exit")
	saveOnly := flag.Bool("save-audio-only", false, "save utterances to disk without calling the endpoint")
	initConfig := flag.Bool("init-config", false, "write the default config file and exit")
	flag.Parse()

	if *initConfig {
		path, err := config.WriteDefault()
		if err != nil {
			fatal("init config: %v", err)
		}
		if path == "" {
			fmt.Println("Config already exists at", config.DefaultConfigPath())
			return
		}
		fmt.Println("Wrote", path)
		return
	}

	cfg, loadedFrom, err := loadConfig(*configPath)
	if err != nil {
		fatal("config: %v", err)
	}
	if err := config.ApplyEnv(cfg); err != nil {
		fatal("config: %v", err)
	}
	if *saveOnly {
		cfg.Delivery.SaveOnly = true
		cfg.Health.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		fatal("config validation: %v", err)
	}

	log, closer, err := logging.New(logging.Options{
		Level:  config.ParseLogLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		fatal("logging: %v", err)
	}
	defer closer.Close()

	if loadedFrom != "" {
		log.Info().Str("path", loadedFrom).Msg("config loaded")
	} else {
		log.Info().Msg("no config file found, using defaults")
	}

	if *listDevices {
		printDevices(cfg, log)
		return
	}

	printBanner(cfg)

	a, err := app.New(cfg, log, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down, press Ctrl+C again to quit immediately")
		cancel()
		<-sigCh
		log.Warn().Msg("forced exit")
		os.Exit(1)
	}()

	if err := a.Run(ctx); err != nil {
		log.Error().Err(err).Msg("relay stopped with error")
		closer.Close()
		os.Exit(1)
	}
	log.Info().Msg("goodbye")
	closer.Close()
	// Exit directly to avoid gohook's C cleanup crash.
	os.Exit(0)
}

// loadConfig loads the config from path, or from the default config path
// if it exists, or falls back to built-in defaults. It returns the file the
// config came from, or "" for defaults.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, defaultPath, nil
	}
	return config.Default(), "", nil
}

func printDevices(cfg *config.Config, log zerolog.Logger) {
	devs, err := app.ListDevices(cfg.Audio, log)
	if err != nil {
		log.Fatal().Err(err).Msg("listing devices failed")
	}
	if len(devs) == 0 {
		fmt.Println("No capture devices found.")
		return
	}
	for _, d := range devs {
		fmt.Printf("%s  %s\n", d.ID, d.Name)
	}
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== gostt-relay ===")
	if cfg.Delivery.SaveOnly {
		fmt.Printf("  Endpoint: none (saving audio to %s)\n", cfg.Delivery.SalvageDir)
	} else {
		fmt.Printf("  Endpoint: %s (%s)\n", cfg.API.BaseURL, cfg.API.Model)
	}
	fmt.Printf("  Audio:    %s, %dHz, %d-sample frames\n", cfg.Audio.Backend, cfg.Audio.SampleRate, cfg.Audio.FrameSize)
	fmt.Printf("  Hotkey:   %s (%s mode)\n", cfg.Hotkeys.Toggle, cfg.Hotkeys.Mode)
	fmt.Printf("  Output:   %s\n", cfg.Output.Method)
	fmt.Printf("  Log:      %s\n", cfg.LogLevel)
	fmt.Println("===================")
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "gostt-relay: "+format+"\n", args...)
	os.Exit(1)
}
