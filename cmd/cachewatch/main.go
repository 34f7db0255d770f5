// Command cachewatch subscribes to map events on a cache cluster, logs them
// and optionally relays them to NATS or Kafka.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/oracle/coherence-js-client-sub001/admin"
	"github.com/oracle/coherence-js-client-sub001/cache"
	"github.com/oracle/coherence-js-client-sub001/cfg"
	"github.com/oracle/coherence-js-client-sub001/events"
	"github.com/oracle/coherence-js-client-sub001/filter"
	"github.com/oracle/coherence-js-client-sub001/relay"
	_ "github.com/oracle/coherence-js-client-sub001/relay/sink"
	"github.com/oracle/coherence-js-client-sub001/telemetry"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	mapsFlag  = flag.String("maps", "", "Comma separated map names to watch")
	whereFlag = flag.String("where", "", "Only watch entries where field=value")
	liteFlag  = flag.Bool("lite", false, "Subscribe without old and new values")
	listFlag  = flag.Bool("list", false, "Print the keys of each map and exit")
)

func main() {
	flag.Parse()

	// Load configuration
	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Setup logging
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Uint64("client_id", cfg.ClientID()).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	names := splitNames(*mapsFlag)
	if len(names) == 0 {
		log.Fatal().Msg("No maps given, use -maps")
		return
	}

	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()
	collector := telemetry.NewMetricsCollector(10 * time.Second)
	collector.Start()
	defer collector.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := cache.NewSession(cache.WithMetricsCollector(collector))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open session")
		return
	}
	defer session.Close()

	if *listFlag {
		for _, name := range names {
			if err := listKeys(ctx, session, name); err != nil {
				log.Error().Err(err).Str("map", name).Msg("Failed to list keys")
			}
		}
		return
	}

	var rly *relay.Relay
	if cfg.Config.Relay.Enabled {
		rly, err = relay.New(relay.ConfigFrom(cfg.Config.Relay))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create relay")
			return
		}
		rly.Start()
		defer rly.Stop()
	}

	where, err := parseWhere(*whereFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -where")
		return
	}

	for _, name := range names {
		if err := watch(ctx, session, name, where, rly); err != nil {
			log.Fatal().Err(err).Str("map", name).Msg("Failed to watch map")
			return
		}
	}

	if cfg.Config.Admin.Enabled {
		srv := startAdmin(session)
		defer stopAdmin(srv, 5*time.Second)
	}

	log.Info().
		Str("address", cfg.Config.Session.Address).
		Strs("maps", names).
		Bool("lite", *liteFlag).
		Bool("relay", rly != nil).
		Msg("Watching maps")

	<-ctx.Done()
	log.Info().Msg("Shutting down")
}

func splitNames(s string) []string {
	var names []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// parseWhere turns "field=value" into an equality filter; empty means all entries
func parseWhere(s string) (filter.Filter, error) {
	if s == "" {
		return nil, nil
	}
	field, value, ok := strings.Cut(s, "=")
	if !ok || field == "" {
		return nil, fmt.Errorf("expected field=value, got %q", s)
	}
	return filter.Events(filter.All, filter.Equal(field, value)), nil
}

func watch(ctx context.Context, session *cache.Session, name string, where filter.Filter, rly *relay.Relay) error {
	m, err := cache.GetNamedMap[any, any](session, name)
	if err != nil {
		return err
	}

	m.OnLifecycle(func(evt events.LifecycleEvent) {
		log.Warn().Err(evt.Err).Str("map", evt.Source).Str("event", evt.Type.String()).Msg("Map lifecycle event")
	})

	listeners := []events.MapListener{events.OnAny(logEvent)}
	if rly != nil {
		listeners = append(listeners, rly.Listener())
	}

	for _, l := range listeners {
		if where == nil {
			err = m.AddListener(ctx, l, *liteFlag)
		} else {
			err = m.AddFilterListener(ctx, l, where, *liteFlag)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func logEvent(e *events.MapEvent) {
	evt := log.Info().Str("map", e.Source()).Str("type", e.Type().String())
	if key, err := e.Key(); err == nil {
		evt = evt.Interface("key", key)
	}
	if v, err := e.NewValue(); err == nil && v != nil {
		evt = evt.Interface("value", v)
	}
	if e.IsSynthetic() {
		evt = evt.Bool("synthetic", true)
	}
	evt.Msg("Map event")
}

func listKeys(ctx context.Context, session *cache.Session, name string) error {
	m, err := cache.GetNamedMap[any, any](session, name)
	if err != nil {
		return err
	}

	n := 0
	for key, err := range m.KeySet().All(ctx) {
		if err != nil {
			return err
		}
		fmt.Println(key)
		n++
	}
	log.Info().Str("map", name).Int("keys", n).Msg("Listed keys")
	return nil
}

func startAdmin(session *cache.Session) *http.Server {
	mux := http.NewServeMux()
	if handler := telemetry.GetMetricsHandler(); handler != nil {
		mux.Handle("/metrics", handler)
	}
	admin.RegisterRoutes(mux, admin.NewAdminHandlers(session))

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Config.Admin.BindAddress, cfg.Config.Admin.Port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Admin server failed")
		}
	}()
	log.Info().Str("addr", srv.Addr).Msg("Admin server listening")
	return srv
}

// stopAdmin waits up to timeout for in-flight admin requests to finish.
func stopAdmin(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Admin server shutdown failed")
		return err
	}
	return nil
}
