// Command flowcore runs a standalone engine instance: it loads
// configuration, wires up storage and the package registry, deploys
// any model files given on the command line, and serves until
// interrupted.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flowkit/flowcore/internal/builder"
	"github.com/flowkit/flowcore/internal/config"
	"github.com/flowkit/flowcore/internal/domain"
	"github.com/flowkit/flowcore/internal/engine"
	"github.com/flowkit/flowcore/internal/logging"
	"github.com/flowkit/flowcore/internal/packages"
	"github.com/flowkit/flowcore/internal/transport/websocket"
	"github.com/flowkit/flowcore/pkg/modelfile"
	"github.com/flowkit/flowcore/pkg/store/memory"
	"github.com/flowkit/flowcore/pkg/store/pgstore"
)

func main() {
	var modelPaths stringSlice
	flag.Var(&modelPaths, "model", "path to a model JSON file to deploy on startup (repeatable)")
	printTree := flag.Bool("print-tree", false, "print each deployed model's compiled node tree and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Setup(cfg.Logging)

	coll, err := newCollection(cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("open storage backend")
	}

	store := engine.NewStore(coll, engine.MsgpackCodec{})
	channel := engine.NewChannel(cfg.Engine.MaxMessageRetries, 5*time.Second)
	registry := engine.NewRegistry()

	rt, err := engine.NewRuntime(engine.Options{
		CacheCap:          cfg.Engine.CacheCap,
		TickInterval:      cfg.Engine.TickInterval,
		MaxMessageRetries: cfg.Engine.MaxMessageRetries,
		KeepProcesses:     cfg.Engine.KeepProcesses,
	}, store, channel, registry)
	if err != nil {
		log.Fatal().Err(err).Msg("create runtime")
	}

	if err := packages.RegisterBuiltins(rt); err != nil {
		log.Fatal().Err(err).Msg("register built-in packages")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.Cache.Restore(ctx, func(p *domain.Process) {
		log.Info().Str("process_id", p.ID).Msg("restored process from store")
	}); err != nil {
		log.Warn().Err(err).Msg("restore processes from store")
	}

	for _, path := range modelPaths {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("read model file")
		}
		model, err := modelfile.Parse(raw)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("parse model file")
		}
		tree, err := rt.DeployModel(ctx, model)
		if err != nil {
			log.Fatal().Err(err).Str("model_id", model.ID).Msg("deploy model")
		}
		log.Info().Str("model_id", model.ID).Str("name", model.Name).Msg("deployed model")
		if *printTree {
			builder.Print(os.Stdout, tree)
		}
	}

	if *printTree {
		return
	}

	rt.Start(ctx)

	gw, err := websocket.NewGateway(channel, "ws-gateway")
	if err != nil {
		log.Fatal().Err(err).Msg("start websocket gateway")
	}
	go gw.Run()

	mux := http.NewServeMux()
	mux.Handle("/ws", gw.Handler())
	srv := &http.Server{Addr: net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("websocket server stopped")
		}
	}()
	log.Info().Int("port", cfg.Server.Port).Msg("flowcore engine running")

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("websocket server shutdown")
	}
	rt.Stop()
}

func newCollection(cfg config.StorageConfig) (engine.Collection, error) {
	switch cfg.Backend {
	case "postgres":
		st := pgstore.New(cfg.DSN)
		if err := st.InitSchema(context.Background()); err != nil {
			return nil, err
		}
		return st, nil
	default:
		return memory.New(), nil
	}
}

type stringSlice []string

func (s *stringSlice) String() string { return "" }
func (s *stringSlice) Set(v string) error {
	*s = append(*s, v)
	return nil
}
