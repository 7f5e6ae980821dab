package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bitsandtea/agent-mrkt/internal/adminsigner"
	"github.com/bitsandtea/agent-mrkt/internal/agentregistry"
	"github.com/bitsandtea/agent-mrkt/internal/attestation"
	"github.com/bitsandtea/agent-mrkt/internal/chainclient"
	"github.com/bitsandtea/agent-mrkt/internal/chainregistry"
	"github.com/bitsandtea/agent-mrkt/internal/config"
	"github.com/bitsandtea/agent-mrkt/internal/handlers"
	"github.com/bitsandtea/agent-mrkt/internal/metrics"
	"github.com/bitsandtea/agent-mrkt/internal/middleware"
	"github.com/bitsandtea/agent-mrkt/internal/publisher"
	"github.com/bitsandtea/agent-mrkt/internal/reconcile"
	"github.com/bitsandtea/agent-mrkt/internal/router"
	"github.com/bitsandtea/agent-mrkt/internal/store/jsonstore"
	"github.com/bitsandtea/agent-mrkt/internal/submitter"
	"github.com/bitsandtea/agent-mrkt/internal/transfer"
	"github.com/bitsandtea/agent-mrkt/internal/validator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

func main() {
	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger := setupLogger(&cfg.Logging)
	logger.Info().Msg("starting payment router")

	m := metrics.New()
	m.MustRegister(prometheus.DefaultRegisterer)

	st, err := jsonstore.New(cfg.Store.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open permit store")
	}

	registry, clients := setupChains(cfg, logger)

	signer, err := adminsigner.New(cfg.Admin.PrivateKeyHex, cfg.Admin.Address)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load admin signer")
	}
	defer signer.Close()

	v := validator.New(clients)
	sub := submitter.New(registry, clients, v, signer)

	attestationClient := attestation.New(
		cfg.AttestationAPIURL,
		nil,
		cfg.Timeouts.AttestationV1Interval,
		cfg.Timeouts.AttestationV2Interval,
		cfg.Timeouts.AttestationBudget,
	)
	transferEngine := transfer.New(registry, clients, signer, attestationClient, st)

	agentsPath := os.Getenv("AGENT_REGISTRY_FILE")
	if agentsPath == "" {
		agentsPath = "agents.yaml"
	}
	agents, err := agentregistry.LoadFile(agentsPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load agent registry")
	}

	pub := publisher.New(&http.Client{Timeout: cfg.Timeouts.PublisherTimeout}, cfg.Timeouts.PublisherTimeout)

	rt := router.New(agents, registry, st, pub, transferEngine, sub, m, logger, cfg.Timeouts.PublisherTimeout+30*time.Second)

	reconciler := reconcile.New(st, transferEngine, cfg.Reconciler.Interval, logger)
	reconcileCtx, stopReconciler := context.WithCancel(context.Background())
	go reconciler.Run(reconcileCtx)
	defer stopReconciler()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handlers.Health(logger))
	mux.HandleFunc("/readyz", handlers.Ready(st, logger))
	mux.HandleFunc("/metrics", promhttp.Handler().ServeHTTP)
	rt.Routes(mux, middleware.Auth(agents))

	handler := middleware.Chain(
		mux,
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
		middleware.Metrics(m),
		middleware.CORS(cfg.CORS),
		middleware.RateLimit(cfg.RateLimit),
	)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Msgf("server listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	stopReconciler()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("stopped gracefully")
}

func configPath() string {
	if path := os.Getenv("ROUTER_CONFIG"); path != "" {
		return path
	}
	return "config.yaml"
}

func setupLogger(cfg *config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// setupChains dials every configured chain's RPC endpoint and builds the
// chain registry plus one chainclient.Client per chain id.
func setupChains(cfg *config.Config, logger zerolog.Logger) (*chainregistry.Registry, map[uint64]*chainclient.Client) {
	chains := make([]chainregistry.Chain, 0, len(cfg.Chains))
	tokens := make(map[string]map[uint64]common.Address)
	decimals := make(map[string]uint8)
	clients := make(map[uint64]*chainclient.Client, len(cfg.Chains))

	for _, c := range cfg.Chains {
		rpc, err := ethclient.Dial(c.RPCURL)
		if err != nil {
			logger.Fatal().Err(err).Uint64("chain_id", c.ChainID).Msg("failed to dial chain RPC")
		}
		clients[c.ChainID] = chainclient.New(c.ChainID, rpc, cfg.Timeouts.ReceiptTimeout)

		chain := chainregistry.Chain{
			ChainID:                   c.ChainID,
			Name:                      c.Name,
			RPCURL:                    c.RPCURL,
			TokenMessengerAddress:     common.HexToAddress(c.TokenMessengerAddress),
			MessageTransmitterAddress: common.HexToAddress(c.MessageTransmitterAddress),
		}
		if c.DestinationDomain != nil {
			chain.DestinationDomain = *c.DestinationDomain
			chain.HasDestinationDomain = true
		}
		chains = append(chains, chain)

		for _, tok := range c.Tokens {
			symbol := tok.Symbol
			if tokens[symbol] == nil {
				tokens[symbol] = make(map[uint64]common.Address)
			}
			tokens[symbol][c.ChainID] = common.HexToAddress(tok.Address)
			decimals[symbol] = c.Decimals
		}
	}

	registry := chainregistry.New(common.HexToAddress(cfg.AllowanceVaultAddress), chains, tokens, decimals)
	return registry, clients
}
