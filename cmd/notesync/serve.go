package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/notesync"
	"pkt.systems/notesync/httpapi"
	"pkt.systems/notesync/internal/appconfig"
	"pkt.systems/notesync/internal/assistant"
	"pkt.systems/pslog"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the document and chat API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			server, err := notesync.NewServer(toServerConfig(cfg), notesync.ServerDeps{Logger: logger})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

func toServerConfig(cfg appconfig.Config) notesync.ServerConfig {
	return notesync.ServerConfig{
		HTTP: httpapi.Config{
			Addr:           cfg.HTTP.Addr,
			BasePath:       cfg.HTTP.BasePath,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			HistorySize:    cfg.HTTP.HistorySize,
		},
		DocumentDir: cfg.DocumentDir(),
		Assistant: assistant.Config{
			BaseURL:      cfg.Assistant.BaseURL,
			APIKey:       cfg.Assistant.APIKey,
			Model:        cfg.Assistant.Model,
			Timeout:      cfg.AssistantTimeout(),
			SystemPrompt: cfg.Assistant.SystemPrompt,
		},
	}
}
