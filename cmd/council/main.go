// Command council starts the Council Processing Subsystem's HTTP server:
// the multi-model deliberation engine of spec.md, wired end to end from a
// YAML config file.
package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/councilml/council/internal/config"
	"github.com/councilml/council/internal/council"
	"github.com/councilml/council/internal/httpapi"
	"github.com/councilml/council/internal/llm"
	"github.com/councilml/council/internal/registry"
	"github.com/councilml/council/internal/sessionstore/memstore"
	"github.com/councilml/council/internal/sessionstore/sqlitestore"
	"github.com/councilml/council/internal/titlegen"
	"github.com/councilml/council/internal/transport"
)

// Options are the process's command-line flags, interpreted by
// github.com/jessevdk/go-flags.
type Options struct {
	Config string `short:"f" long:"config" description:"council config YAML path" required:"true"`
	Addr   string `short:"a" long:"addr" description:"listen address" default:":8080"`
}

func main() {
	var opts Options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		log.Fatalf("council: %v", err)
	}

	store, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("council: %v", err)
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	client := llm.New(llm.Config{BaseURL: cfg.UpstreamBaseURL, APIKey: cfg.UpstreamAPIKey()})

	reg := registry.New(registry.Config{
		MaxConcurrent: cfg.MaxConcurrent,
		GracePeriod:   cfg.GracePeriod(),
		StaleThreshold: cfg.StaleThreshold(),
		SweepInterval:  cfg.SweepInterval(),
	})
	defer reg.Shutdown()

	orchestrator := council.New(client, store, buildOrchestratorConfig(cfg), buildTitleGenerator(cfg, client))

	streamHandler := transport.New(reg, transport.Config{HeartbeatInterval: cfg.HeartbeatInterval()})

	validModes := map[council.Mode]bool{}
	for name := range cfg.Modes {
		validModes[council.Mode(name)] = true
	}

	server := httpapi.New(store, store, reg, orchestrator, streamHandler, httpapi.Config{
		DefaultMode:   council.Mode(cfg.DefaultMode),
		ValidModes:    validModes,
		MaxContentLen: cfg.MaxContentLen,
		UpstreamReady: func() bool { return cfg.UpstreamAPIKey() != "" },
	})

	log.Printf("council: listening on %s", opts.Addr)
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Fatal(srv.ListenAndServe())
}

// sessionBackend is satisfied by both memstore.Store and sqlitestore.Store,
// the two council.SessionStore implementations this binary can select
// between.
type sessionBackend interface {
	httpapi.SessionCreator
	council.SessionStore
}

func buildStore(cfg *config.Config) (sessionBackend, error) {
	if cfg.DBPath == "" {
		store := memstore.New(cfg.MaxSessionsPerUser)
		return store, nil
	}
	store, err := sqlitestore.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	store.SetMaxSessionsPerUser(cfg.MaxSessionsPerUser)
	return store, nil
}

func buildOrchestratorConfig(cfg *config.Config) council.Config {
	models := make(map[council.Mode]council.ModelSet, len(cfg.Modes))
	for name, set := range cfg.Modes {
		models[council.Mode(name)] = council.ModelSet{Participants: set.Participants, Chairman: set.Chairman}
	}
	return council.Config{
		Models:               models,
		Stage1Timeout:        cfg.Stage1Timeout(),
		Stage2Timeout:        cfg.Stage2Timeout(),
		Stage3Timeout:        cfg.Stage3Timeout(),
		ParticipantMaxTokens: cfg.ParticipantMaxTokens,
		ChairmanMaxTokens:    cfg.ChairmanMaxTokens,
		RecentMessagesLimit:  cfg.RecentMessagesWindow,
		TitleTimeout:         cfg.TitleTimeout(),
	}
}

// buildTitleGenerator wires a title job against the default mode's chairman
// model, so a dedicated "title model" config knob isn't needed.
func buildTitleGenerator(cfg *config.Config, client *llm.Client) council.TitleGenerator {
	defaultSet, ok := cfg.Modes[cfg.DefaultMode]
	if !ok || defaultSet.Chairman == "" {
		return nil
	}
	return titlegen.New(client, defaultSet.Chairman, 32, cfg.TitleTimeout())
}
