// inkwell - an editor-side AI coordinator: chat, ghost-text completion,
// and inline edits over local and cloud models.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/morganforge/inkwell/internal/ai"
	"github.com/morganforge/inkwell/internal/cloud"
	"github.com/morganforge/inkwell/internal/completion"
	"github.com/morganforge/inkwell/internal/config"
	"github.com/morganforge/inkwell/internal/editor"
	"github.com/morganforge/inkwell/internal/inlineedit"
	"github.com/morganforge/inkwell/internal/ollama"
	"github.com/morganforge/inkwell/internal/router"
	"github.com/morganforge/inkwell/internal/ui"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v":
			fmt.Printf("inkwell %s (%s)\n", Version, GitCommit)
			return
		case "--models":
			if err := listModels(); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "inkwell is an interactive terminal application; run it in a TTY")
		os.Exit(1)
	}

	// The standard logger would write over the TUI. Send it to a file
	// when debugging is requested, otherwise drop it.
	if os.Getenv("INKWELL_DEBUG") != "" {
		f, err := tea.LogToFile("inkwell-debug.log", "inkwell")
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not open debug log: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
	} else {
		log.SetOutput(io.Discard)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Seed the config file on first run so there is something to edit
	// and for the watcher to watch.
	if path, err := config.Path(); err == nil {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := config.Save(cfg); err != nil {
				log.Printf("CONFIG: could not write default config: %v", err)
			}
		}
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// listModels prints the models the local Ollama instance has pulled.
func listModels() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	client := ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: cfg.Local.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	models, err := client.ListModels(ctx)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		fmt.Println("no local models installed")
		return nil
	}
	for _, m := range models {
		fmt.Printf("%-40s %6.1f GB  %s\n", m.Name, float64(m.Size)/(1<<30), m.Details.ParameterSize)
	}
	return nil
}

// run wires the providers, the coordinator, and the three feature
// controllers, then hands the event loop to Bubble Tea.
func run(cfg *config.Config) error {
	local := ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL:      cfg.Local.URL,
		DefaultModel: cfg.Local.ChatModel,
	})
	cloudClient := cloud.NewClient(cloud.ClientConfig{
		APIKey:            cfg.Cloud.APIKey,
		Model:             cfg.Cloud.Model,
		MaxTokens:         cfg.Cloud.MaxTokens,
		RequestsPerMinute: cfg.Cloud.RequestsPerMinute,
	})

	routes := router.New(router.TableFromConfig(cfg))

	coord := ai.NewCoordinator(ai.Timeouts{
		Chat:       cfg.Timeouts.Chat(),
		Completion: cfg.Timeouts.Completion(),
		InlineEdit: cfg.Timeouts.InlineEdit(),
	})
	defer coord.Close()

	buffer := editor.NewBuffer("")

	chat := ai.NewChatController(coord, routes, local, cloudClient, cfg.LayoutMode)
	engine := completion.NewEngine(coord, routes, local, buffer, completion.Config{
		Enabled:  cfg.Completion.Enabled,
		Debounce: cfg.Completion.Debounce(),
		Window: completion.Window{
			PrefixMaxLines: cfg.Completion.PrefixMaxLines,
			SuffixMaxLines: cfg.Completion.SuffixMaxLines,
		},
		Limits: completion.Limits{
			MaxLines: cfg.Completion.MaxSuggestionLines,
			MaxChars: cfg.Completion.MaxSuggestionChars,
		},
	})
	inline := inlineedit.NewController(coord, routes, local, cloudClient, buffer, cfg.LayoutMode)

	model := ui.New(cfg, coord, routes, chat, engine, inline, buffer)
	program := tea.NewProgram(model, tea.WithAltScreen())

	// Config edits reach the running program as messages so the route
	// table swaps on the UI loop like everything else.
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	watcher, err := config.Watch(watchCtx, func(fresh *config.Config) {
		program.Send(ui.ConfigReloadedMsg{Config: fresh})
	})
	if err != nil {
		log.Printf("CONFIG: watcher unavailable: %v", err)
	} else {
		defer watcher.Close()
	}

	_, err = program.Run()
	return err
}
