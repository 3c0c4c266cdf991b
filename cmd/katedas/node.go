package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/eigerco/katedas/internal/config"
	"github.com/eigerco/katedas/internal/kzg"
	"github.com/eigerco/katedas/internal/sampling"
	"github.com/eigerco/katedas/internal/store"
	"github.com/eigerco/katedas/pkg/log"
	"github.com/eigerco/katedas/pkg/network/handlers"
	"github.com/eigerco/katedas/pkg/network/peer"
)

const (
	listenFlag  = "network.listen"
	peerFlag    = "network.peer"
	lightFlag   = "network.light"
	metricsFlag = "metrics.addr"
	produceFlag = "dev.produce"
)

func nodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Run a node serving and sampling data availability grids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := applyNodeFlags(cmd, cfg); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			metricsAddr, _ := cmd.Flags().GetString(metricsFlag)
			produce, _ := cmd.Flags().GetDuration(produceFlag)
			return runNode(ctx, cfg, metricsAddr, produce)
		},
	}
	cmd.Flags().String(listenFlag, "", "QUIC listen address")
	cmd.Flags().StringSlice(peerFlag, nil, "Reserved peer address, may be repeated")
	cmd.Flags().Bool(lightFlag, false, "Sample only, never serve proofs")
	cmd.Flags().String(metricsFlag, "", "Serve prometheus metrics on this address")
	cmd.Flags().Duration(produceFlag, 0, "Produce and announce a random block at this interval")
	return cmd
}

func applyNodeFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed(listenFlag) {
		cfg.Network.ListenAddr, _ = flags.GetString(listenFlag)
	}
	if flags.Changed(peerFlag) {
		cfg.Network.Peers, _ = flags.GetStringSlice(peerFlag)
	}
	if flags.Changed(lightFlag) {
		cfg.Network.Light, _ = flags.GetBool(lightFlag)
	}
	return cfg.Validate()
}

func runNode(ctx context.Context, cfg *config.Config, metricsAddr string, produce time.Duration) error {
	if produce > 0 && cfg.Network.Light {
		return errors.New("light nodes cannot produce blocks")
	}
	params, err := loadParams(cfg.KZG)
	if err != nil {
		return err
	}
	if params.MaxWidth() < cfg.Grid.MaxWidth {
		return fmt.Errorf("%w: parameters for width %d, grid max width %d", kzg.ErrParamsTooSmall, params.MaxWidth(), cfg.Grid.MaxWidth)
	}
	backend := kzg.NewBackend(params)

	chain, err := openChain(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer chain.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := sampling.NewMetrics(reg)

	server, err := sampling.NewProofServer(cfg.ProofServer(), chain, backend, metrics)
	if err != nil {
		return err
	}
	node, err := peer.NewNode(cfg.Node(), peer.Servers{Cells: server, Rows: server})
	if err != nil {
		return err
	}
	if err := node.Start(); err != nil {
		return err
	}
	defer func() {
		if err := node.Stop(); err != nil {
			log.Network.Warn().Err(err).Msg("failed to stop node")
		}
	}()
	if err := node.ConnectReserved(ctx, cfg.Network.Peers); err != nil {
		log.Network.Warn().Err(err).Msg("failed to connect some reserved peers")
	}

	sampler := sampling.NewSampler(cfg.Sampler([]byte(node.ID())), backend, node, node,
		sampling.WithMetrics(metrics),
		sampling.WithFinality(chain),
	)
	defer sampler.Stop()

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Root.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		defer srv.Close()
	}

	imports := make(chan sampling.Import)
	go importAnnouncements(ctx, chain, node.Announcements(), imports)

	if produce > 0 {
		p, err := newProducer(chain, backend, cfg.BlockGrid(), cfg.Store.Retain, node, sampler)
		if err != nil {
			return err
		}
		go p.run(ctx, produce)
	}

	log.Root.Info().
		Str("id", string(node.ID())).
		Bool("light", cfg.Network.Light).
		Int("peers", len(node.ReservedPeers())).
		Msg("node started")

	err = sampler.Run(ctx, imports)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Root.Info().Msg("node stopping")
	return err
}

// importAnnouncements stores announced headers and hands them to the
// sampler. It closes imports when ctx is done.
func importAnnouncements(ctx context.Context, chain *store.Chain, in <-chan handlers.Announcement, imports chan<- sampling.Import) {
	defer close(imports)
	for {
		select {
		case <-ctx.Done():
			return
		case ann := <-in:
			if err := chain.PutHeader(ann.Header); err != nil {
				log.Store.Warn().Err(err).Uint32("number", ann.Header.Number).Msg("failed to store announced header")
			}
			select {
			case imports <- sampling.Import{Header: ann.Header}:
			case <-ctx.Done():
				return
			}
		}
	}
}
