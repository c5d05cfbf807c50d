// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/aleutian-core/internal/config"
	"github.com/AleutianAI/aleutian-core/internal/indexmanager"
	"github.com/AleutianAI/aleutian-core/internal/keyring"
	"github.com/AleutianAI/aleutian-core/internal/obs"
)

// Version is set at build time via -ldflags "-X main.Version=...".
var Version = "dev"

// Persistent flag values, following cmd/root.go's package-level-var style:
// one var block per command, bound to the root command's flags inside
// newRootCmd rather than threaded through a config struct constructor.
var (
	projectPath   string
	dataHome      string
	configPath    string
	providerName  string
	modelName     string
	keyAlias      string
	baseURL       string
	contextWindow int
	metricsAddr   string
)

// app bundles the long-lived handles every subcommand needs: the project's
// IndexManager (which owns the VectorStore/search.Engine pair once a
// project is indexed), the process keyring, and the resolved runtime
// provider config. Built once in PersistentPreRunE and torn down in
// PersistentPostRunE.
type app struct {
	projectPath string
	runtimeCfg  config.RuntimeConfig
	keys        *keyring.Keyring
	indexMgr    *indexmanager.Manager
	logger      *slog.Logger
	obsShutdown obs.Shutdown

	metricsServer *http.Server
}

var core *app

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "agentd",
		Short:         "agentd — agentic desktop-assistant core",
		Long:          "agentd is the thin CLI adapter over the orchestrator/index/embedding core: project indexing, hybrid search, and provider-agnostic agentic sessions, all run in-process.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupApp(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return teardownApp(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&projectPath, "project", ".", "project root to index and operate on")
	root.PersistentFlags().StringVar(&dataHome, "data-home", defaultDataHome(), "directory each project's VectorStore/AnnIndex persists under")
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "YAML runtime-config file providing defaults for --provider/--model/etc. (flags always win)")
	root.PersistentFlags().StringVar(&providerName, "provider", "ollama", "completion provider: anthropic, openai, gemini, or ollama")
	root.PersistentFlags().StringVar(&modelName, "model", "", "model name for the selected provider")
	root.PersistentFlags().StringVar(&keyAlias, "key-alias", "", "keyring alias to resolve the provider's API key from (unused for ollama)")
	root.PersistentFlags().StringVar(&baseURL, "base-url", "", "override the provider's default base URL")
	root.PersistentFlags().IntVar(&contextWindow, "context-window", 0, "override the provider's default context window (0 uses the adapter's default)")
	root.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address for the command's duration (e.g. :9090)")

	root.AddCommand(versionCmd())
	root.AddCommand(indexCmd())
	root.AddCommand(searchCmd())
	root.AddCommand(chatCmd())

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agentd %s\n", Version)
		},
	}
}

func defaultDataHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentd"
	}
	return filepath.Join(home, ".agentd")
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".agentd", "config.yaml")
}

// setupApp installs observability, the keyring, and the IndexManager, and
// resolves the runtime provider config from flags. Every subcommand reads
// shared state off the package-level `core` rather than re-resolving it,
// mirroring cmd/root.go's resolveConfigPath()-once-per-run-group shape.
func setupApp(cmd *cobra.Command) error {
	logger := slog.Default()

	absProject, err := filepath.Abs(projectPath)
	if err != nil {
		return fmt.Errorf("agentd: resolving project path: %w", err)
	}

	shutdown, err := obs.Setup(cmd.Context(), "agentd")
	if err != nil {
		return fmt.Errorf("agentd: starting observability: %w", err)
	}

	keys := keyring.New()
	if secret := os.Getenv("AGENTD_API_KEY"); secret != "" && keyAlias != "" {
		if err := keys.Set(keyAlias, secret); err != nil {
			_ = shutdown(cmd.Context())
			return fmt.Errorf("agentd: seeding keyring alias %q: %w", keyAlias, err)
		}
	}

	file, err := config.LoadRuntimeConfigFile(configPath)
	if err != nil {
		_ = shutdown(cmd.Context())
		return fmt.Errorf("agentd: loading config file: %w", err)
	}
	if file != nil {
		// Flags always win: a file value only fills in a flag the user
		// left at its cobra-registered default.
		if !cmd.Flags().Changed("provider") && file.Provider != "" {
			providerName = file.Provider
		}
		if !cmd.Flags().Changed("model") && file.Model != "" {
			modelName = file.Model
		}
		if !cmd.Flags().Changed("key-alias") && file.KeyringAlias != "" {
			keyAlias = file.KeyringAlias
		}
		if !cmd.Flags().Changed("base-url") && file.BaseURL != "" {
			baseURL = file.BaseURL
		}
		if !cmd.Flags().Changed("context-window") && file.ContextWindow != 0 {
			contextWindow = file.ContextWindow
		}
	}

	runtimeCfg := config.RuntimeConfig{
		Provider:      config.Kind(providerName),
		Model:         modelName,
		KeyringAlias:  keyAlias,
		BaseURL:       baseURL,
		ContextWindow: contextWindow,
	}
	if cmd.Name() == "chat" {
		if err := runtimeCfg.Validate(); err != nil {
			_ = shutdown(cmd.Context())
			return err
		}
	}

	indexMgr := indexmanager.New(dataHome, keys, logger)

	var metricsServer *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", obs.Handler())
		metricsServer = &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("agentd: metrics server stopped", "error", err)
			}
		}()
	}

	core = &app{
		projectPath:   absProject,
		runtimeCfg:    runtimeCfg,
		keys:          keys,
		indexMgr:      indexMgr,
		logger:        logger,
		obsShutdown:   shutdown,
		metricsServer: metricsServer,
	}
	return nil
}

func teardownApp(ctx context.Context) error {
	if core == nil {
		return nil
	}
	core.indexMgr.Shutdown()
	if core.metricsServer != nil {
		_ = core.metricsServer.Close()
	}
	keyring.Close()
	return core.obsShutdown(ctx)
}
