package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rahul/agentlab/internal/gateway"
	"github.com/rahul/agentlab/internal/observability"
	"github.com/rahul/agentlab/pkg/config"
)

var noDashboard bool

var gatewayCmd = &cobra.Command{
	Use:       "gateway <telegram|discord|slack>",
	Short:     "Answer chat messages with the agents",
	ValidArgs: []string{"telegram", "discord", "slack"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE:      runGateway,
}

func init() {
	gatewayCmd.Flags().BoolVar(&noDashboard, "no-dashboard", false, "Disable the live terminal status line")
}

func runGateway(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	gwCfg, ok := a.cfg.GetGatewayConfig(args[0])
	if !ok {
		return fmt.Errorf("%s gateway is not enabled or token is missing", args[0])
	}
	messenger, err := newMessenger(args[0], gwCfg, gateway.NewHandler(a.agents, a.history))
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	dashboard := !noDashboard && observability.IsTerminal()
	if dashboard {
		observability.PrintBanner(os.Stdout)
		observability.InitializeTerminal()
		// Route all log output through the terminal mutex so it never
		// interrupts the dashboard's cursor save/restore sequence.
		log.SetOutput(observability.NewTermWriter())
		defer observability.CleanupTerminal()

		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					observability.PrintLiveStatus()
				}
			}
		}()
	}

	startBackground(ctx, a, messenger)

	if a.cfg.Server.Enabled {
		go func() {
			if err := a.newServer().ListenAndServe(ctx, a.cfg.Server.Addr()); err != nil {
				log.Printf("[Server] %v", err)
			}
		}()
	}

	go func() {
		if err := messenger.Start(ctx); err != nil {
			log.Printf("\033[91m[ FAIL ] GATEWAY CRITICAL ERROR: %v\033[0m", err)
			stop()
		}
	}()

	<-ctx.Done()
	if err := messenger.Stop(); err != nil {
		log.Printf("Error stopping gateway: %v", err)
	}
	log.Println("\033[95m[ EXIT ] Gateway stopped.\033[0m")
	return nil
}

func newMessenger(name string, cfg config.GatewayConfig, handler *gateway.Handler) (gateway.Messenger, error) {
	switch name {
	case "telegram":
		return gateway.NewTelegramGateway(cfg.Token, handler)
	case "discord":
		return gateway.NewDiscordGateway(cfg.Token, handler)
	case "slack":
		return gateway.NewSlackGateway(cfg.Token, cfg.AppToken, handler)
	default:
		return nil, fmt.Errorf("unknown gateway %q", name)
	}
}
