package main

import (
	"context"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/rahul/agentlab/internal/agent"
	"github.com/rahul/agentlab/internal/observability"
	"github.com/rahul/agentlab/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the agents over HTTP",
	Long: `Start the HTTP service on server.host:server.port and resume any runs
left unfinished by a previous process.

Routes: GET /healthz, GET /info, POST /invoke, GET /runs, GET /runs/:id.
Every route but /healthz requires "Authorization: Bearer <auth_secret>".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		if a.cfg.Server.AuthSecret == "" {
			log.Println("Warning: server.auth_secret is empty, the API is unauthenticated")
		}
		startBackground(ctx, a, nil)
		return a.newServer().ListenAndServe(ctx, a.cfg.Server.Addr())
	},
}

func (a *app) newServer() *server.Server {
	return server.New(a.cfg.App.Name, a.agents, a.checkpoints, a.cfg.Server.AuthSecret)
}

// startBackground runs the resume scheduler and the heartbeat until ctx ends.
func startBackground(ctx context.Context, a *app, messenger agent.Messenger) {
	scheduler := agent.NewScheduler(a.sequencer, a.checkpoints, messenger, a.active, a.cfg.Workflow.ResumeInterval)
	for key, seq := range a.sequencers {
		scheduler.Handle(key, seq)
	}
	go scheduler.Start(ctx)

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		observability.Heartbeat()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.Heartbeat()
				a.logger.LogHeartbeat()
			}
		}
	}()
}
