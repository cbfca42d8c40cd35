// nimbusiod is the gateway daemon: it loads the cluster topology from
// the environment, dials every storage node over NATS, serves the HTTP
// boundary, and runs this node's periodic handoff-rejoin beacon.
// Grounded on the teacher's ais/setup/aisnode.go entry point, generalized
// from its one-liner (all startup logic lives in the ais package) to
// inline boot/shutdown sequencing, since that logic has no equivalent
// package of its own here.
/*
 * Copyright (c) 2024, nimbus.io contributors.
 */
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nimbus-io/gateway/cluster"
	"github.com/nimbus-io/gateway/cmn"
	"github.com/nimbus-io/gateway/ec"
	"github.com/nimbus-io/gateway/gwhttp"
	"github.com/nimbus-io/gateway/gwlog"
	"github.com/nimbus-io/gateway/handoff"
	"github.com/nimbus-io/gateway/stats"
	"github.com/nimbus-io/gateway/transport"
)

var log = gwlog.New("nimbusiod")

const (
	defaultHTTPAddr      = ":8080"
	rejoinBeaconInterval = 30 * time.Second
	shutdownGrace        = 30 * time.Second
)

func main() {
	os.Exit(run())
}

// run returns the process exit code (spec.md §6: "0 normal shutdown,
// non-zero on boot failure (config, topology, or cluster-row absent)").
func run() int {
	cfg, err := cmn.LoadConfig()
	if err != nil {
		log.Errorf("boot: %v", err)
		return 1
	}
	topo := cluster.NewTopology(cfg, cfg.MinConnected)

	natsURL := envOr("NIMBUSIO_NATS_URL", nats.DefaultURL)
	pool, err := transport.Dial(natsURL, topo.Nodes)
	if err != nil {
		log.Errorf("boot: dialing NATS at %s: %v", natsURL, err)
		return 1
	}
	defer pool.Close()

	seg, err := ec.NewSegmenter(cfg.MinConnected, topo.N())
	if err != nil {
		log.Errorf("boot: building erasure scheme: %v", err)
		return 1
	}

	st := stats.New()
	gw := gwhttp.NewServer(topo, pool, seg, cfg.MinConnected,
		gwhttp.NewMemCollectionStore(), gwhttp.NewMemAuthenticator(),
		gwhttp.NewMemUsageAccounting(), gwhttp.NewMemKeyIndex(), st)

	httpAddr := envOr("NIMBUSIO_HTTP_ADDR", defaultHTTPAddr)
	httpSrv := &http.Server{Addr: httpAddr, Handler: gw.Router()}

	peers := make([]*transport.NodeClient, 0, topo.N()-1)
	for _, node := range topo.Nodes {
		if node == topo.Self {
			continue
		}
		peers = append(peers, pool.Client(node))
	}
	requestor := handoff.NewRequestor(peers, topo.Self, topo.Self, topo.Self, httpAddr)
	requestorCtx, stopRequestor := context.WithCancel(context.Background())
	defer stopRequestor()
	go requestor.Run(requestorCtx, rejoinBeaconInterval)

	errCh := make(chan error, 1)
	go func() {
		log.Infof("node %s listening on %s (%d nodes, min_connected=%d)", topo.Self, httpAddr, topo.N(), cfg.MinConnected)
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Errorf("http server: %v", err)
			return 1
		}
	case sig := <-sigCh:
		log.Infof("received %s, draining", sig)
		st.BeginDraining()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("graceful shutdown: %v", err)
			return 1
		}
	}

	gwlog.Flush()
	return 0
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
