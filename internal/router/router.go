// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package router decides which provider and model serves each request.
//
// Routing is a pure function of the request category, an optional
// per-request override, and the active route table. The table is built
// from configuration and swapped atomically on reload, so in-flight
// requests keep the decision they were made with.
package router

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/morganforge/inkwell/internal/config"
)

// =============================================================================
// TYPES
// =============================================================================

// Provider identifies which backend serves a request.
type Provider int

const (
	// ProviderLocal is the Ollama instance on this machine.
	ProviderLocal Provider = iota
	// ProviderCloud is the Anthropic API.
	ProviderCloud
)

// String returns the provider name.
func (p Provider) String() string {
	switch p {
	case ProviderLocal:
		return "local"
	case ProviderCloud:
		return "cloud"
	default:
		return "unknown"
	}
}

// Category is the kind of AI request being routed.
type Category int

const (
	// CategoryChat is a conversational request from the chat panel.
	CategoryChat Category = iota
	// CategoryCompletion is a ghost-text completion request.
	CategoryCompletion
	// CategoryInlineEdit is a selection-scoped edit request.
	CategoryInlineEdit
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryChat:
		return "chat"
	case CategoryCompletion:
		return "completion"
	case CategoryInlineEdit:
		return "inline-edit"
	default:
		return "unknown"
	}
}

// Decision is the outcome of routing a single request.
type Decision struct {
	Provider Provider
	Model    string
	// Reason describes why this decision was made, for logging.
	Reason string
	// Overridden is true when a per-request override won over the table.
	Overridden bool
}

// Route is one row of the route table: the model a category uses.
// An empty Model falls back to the table's category default.
type Route struct {
	Model string
}

// Table maps categories to models and carries the provider defaults.
// Tables are immutable once built; reloads install a new one.
type Table struct {
	chat       Route
	completion Route
	inlineEdit Route

	// localChatModel and localCompletionModel are the configured local
	// defaults, used when a route names no model.
	localChatModel       string
	localCompletionModel string
}

// TableConfig holds the inputs for building a route table.
type TableConfig struct {
	ChatModel            string
	CompletionModel      string
	InlineEditModel      string
	LocalChatModel       string
	LocalCompletionModel string
}

// NewTable builds an immutable route table.
func NewTable(cfg TableConfig) *Table {
	return &Table{
		chat:                 Route{Model: cfg.ChatModel},
		completion:           Route{Model: cfg.CompletionModel},
		inlineEdit:           Route{Model: cfg.InlineEditModel},
		localChatModel:       cfg.LocalChatModel,
		localCompletionModel: cfg.LocalCompletionModel,
	}
}

// TableFromConfig builds a route table from loaded configuration.
func TableFromConfig(cfg *config.Config) *Table {
	return NewTable(TableConfig{
		ChatModel:            cfg.Routes.Chat,
		CompletionModel:      cfg.Routes.Completion,
		InlineEditModel:      cfg.Routes.InlineEdit,
		LocalChatModel:       cfg.Local.ChatModel,
		LocalCompletionModel: cfg.Local.CompletionModel,
	})
}

// =============================================================================
// PROVIDER INFERENCE
// =============================================================================

// InferProvider determines which provider serves a model by name.
// Anthropic model names contain "claude" or "haiku"; everything else is
// assumed to be a local Ollama model.
func InferProvider(model string) Provider {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "claude") || strings.Contains(lower, "haiku") {
		return ProviderCloud
	}
	return ProviderLocal
}

// =============================================================================
// ROUTING
// =============================================================================

// Resolve routes a request. The override, when non-empty, wins over the
// table's route for the category, unconditionally: a cloud model named
// without a configured API key is still routed to the cloud provider,
// whose fail-fast error reaches the channel's error path.
func (t *Table) Resolve(category Category, override string) Decision {
	model := override
	overridden := override != ""

	if model == "" {
		switch category {
		case CategoryChat:
			model = t.chat.Model
		case CategoryCompletion:
			model = t.completion.Model
		case CategoryInlineEdit:
			model = t.inlineEdit.Model
		}
	}

	// Fall back to the category's local default when nothing is routed.
	if model == "" {
		model = t.localDefault(category)
	}

	provider := InferProvider(model)
	reason := fmt.Sprintf("%s -> %s/%s", category, provider, model)
	if overridden {
		reason += " (override)"
	}

	return Decision{
		Provider:   provider,
		Model:      model,
		Reason:     reason,
		Overridden: overridden,
	}
}

// localDefault returns the local fallback model for a category.
// Completions use the dedicated completion model; chat and inline edit
// share the chat model.
func (t *Table) localDefault(category Category) string {
	if category == CategoryCompletion {
		return t.localCompletionModel
	}
	return t.localChatModel
}

// =============================================================================
// ROUTER
// =============================================================================

// Router holds the active route table and swaps it atomically on
// configuration reload. Resolve never blocks on a reload in progress.
type Router struct {
	table atomic.Pointer[Table]
}

// New creates a router with an initial table.
func New(table *Table) *Router {
	r := &Router{}
	r.table.Store(table)
	return r
}

// Resolve routes a request against the active table.
func (r *Router) Resolve(category Category, override string) Decision {
	d := r.table.Load().Resolve(category, override)
	log.Printf("ROUTING: %s", d.Reason)
	return d
}

// Reload installs a new route table. In-flight requests keep their
// existing decisions.
func (r *Router) Reload(table *Table) {
	r.table.Store(table)
	log.Printf("ROUTING: route table reloaded")
}

// Table returns the active table.
func (r *Router) Table() *Table {
	return r.table.Load()
}
