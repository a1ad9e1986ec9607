package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/mantlegpt/mantlebot/pkg/blockchain"
	"github.com/mantlegpt/mantlebot/pkg/channels"
	"github.com/mantlegpt/mantlebot/pkg/config"
	"github.com/mantlegpt/mantlebot/pkg/custody"
	"github.com/mantlegpt/mantlebot/pkg/intent"
	"github.com/mantlegpt/mantlebot/pkg/logger"
	"github.com/mantlegpt/mantlebot/pkg/pending"
	"github.com/mantlegpt/mantlebot/pkg/vault"
	"github.com/mantlegpt/mantlebot/pkg/wallet"
)

var version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "mantlebot",
		Short: "AI powered custodial wallet bot for the Mantle Network",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "path to config file (json or yaml)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("mantlebot", version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	v, err := vault.New(cfg.Wallet.EncryptionKey)
	if err != nil {
		return err
	}

	gateway, err := blockchain.Dial(ctx, blockchain.Config{
		RPC:          cfg.Chain.RPC,
		ChainID:      cfg.Chain.ChainID,
		TokenAddress: common.HexToAddress(cfg.Chain.TokenAddress),
		Timeout:      cfg.Chain.RPCTimeout.Std(),
	})
	if err != nil {
		return err
	}
	defer gateway.Close()

	store := wallet.NewStore(v)
	ledger := pending.NewLedger(cfg.Wallet.PendingTTL.Std(), cfg.Wallet.SweepInterval.Std())
	ledger.Start(ctx)

	svc := custody.NewService(store, ledger, gateway, v, cfg.Chain.NativeSymbol, cfg.Chain.TokenSymbol)

	var extractor intent.Extractor
	if cfg.OpenAI.APIKey != "" {
		extractor = intent.NewOpenAIExtractor(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	} else {
		logger.WarnCF("main", "No OpenAI key configured, using rule-based intents only", nil)
		extractor = intent.RuleParser{}
	}

	channel, err := channels.NewTelegramChannel(cfg.Telegram.Token, svc, extractor, cfg.Chain.ExplorerURL)
	if err != nil {
		return err
	}

	logger.InfoCF("main", "Starting mantlebot", map[string]any{
		"version": version,
		"chain":   cfg.Chain.ChainID,
	})

	return channel.Run(ctx)
}
