package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/springmap/internal/fetch"
	"github.com/MeKo-Tech/springmap/internal/server"
	"github.com/MeKo-Tech/springmap/pkg/springmap"
)

var serveCmd = &cobra.Command{
	Use:   "serve <map-document>",
	Short: "Preview a map document in the browser",
	Long: `Serve builds a map document and serves the page together with its data:
vector layers as GeoJSON, MBTiles raster layers as tiles and vector layers
rasterised into PNG tiles on demand.

Rendered tiles and remote datasets are cached in memory, or in Redis when
--redis-addr is set so that several servers can share them.`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Listen address (host:port)")
	serveCmd.Flags().String("cache-control", "no-store", "Cache-Control header for served tiles")
	serveCmd.Flags().Int("max-concurrent-renders", runtime.NumCPU(), "Max concurrent on-demand tile renders (default: number of CPUs)")
	serveCmd.Flags().Duration("render-timeout", 30*time.Second, "Timeout per on-demand tile render")
	serveCmd.Flags().String("png-compression", "default", "PNG compression (default, speed, best, none)")
	serveCmd.Flags().Duration("cache-ttl", time.Hour, "How long rendered tiles and fetched data stay cached")
	serveCmd.Flags().Int("cache-entries", fetch.DefaultMemoryEntries, "Max entries in the in-memory cache")
	serveCmd.Flags().Bool("allow-failures", false, "Serve the map even if some layers fail to load")

	serveCmd.Flags().String("redis-addr", "", "Redis address for a shared cache (host:port); empty keeps the cache in memory")
	serveCmd.Flags().String("redis-password", "", "Redis password")
	serveCmd.Flags().Int("redis-db", 0, "Redis database number")

	mustBind(serveCmd, "serve.addr", "addr")
	mustBind(serveCmd, "serve.cache_control", "cache-control")
	mustBind(serveCmd, "serve.max_concurrent_renders", "max-concurrent-renders")
	mustBind(serveCmd, "serve.render_timeout", "render-timeout")
	mustBind(serveCmd, "serve.png_compression", "png-compression")
	mustBind(serveCmd, "serve.cache_ttl", "cache-ttl")
	mustBind(serveCmd, "serve.cache_entries", "cache-entries")
	mustBind(serveCmd, "serve.allow_failures", "allow-failures")
	mustBind(serveCmd, "serve.redis_addr", "redis-addr")
	mustBind(serveCmd, "serve.redis_password", "redis-password")
	mustBind(serveCmd, "serve.redis_db", "redis-db")
}

func runServe(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	addr := viper.GetString("serve.addr")
	cacheTTL := viper.GetDuration("serve.cache_ttl")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cache fetch.Cache
	if redisAddr := viper.GetString("serve.redis_addr"); redisAddr != "" {
		rc, err := fetch.NewRedisCache(fetch.RedisConfig{
			Address:  redisAddr,
			Password: viper.GetString("serve.redis_password"),
			DB:       viper.GetInt("serve.redis_db"),
		})
		if err != nil {
			return err
		}
		defer rc.Close()
		cache = rc
		logger.Info("Using Redis cache", "addr", redisAddr)
	} else {
		cache = fetch.NewMemoryCacheSize(viper.GetInt("serve.cache_entries"))
	}

	// The page and its tiles come from the same origin.
	opts := append(mapOptions(cache), springmap.WithTileServer("/"))
	m, _, err := buildMap(ctx, args[0], viper.GetBool("serve.allow_failures"), opts...)
	if err != nil {
		return err
	}

	s, err := server.New(m, server.Config{
		CacheControl:         viper.GetString("serve.cache_control"),
		MaxConcurrentRenders: viper.GetInt("serve.max_concurrent_renders"),
		RenderTimeout:        viper.GetDuration("serve.render_timeout"),
		Cache:                cache,
		CacheTTL:             cacheTTL,
		PNGCompression:       viper.GetString("serve.png_compression"),
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn("Failed to close server", "error", err)
		}
	}()

	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	logger.Info("Preview server listening",
		"addr", addr,
		"url", fmt.Sprintf("http://%s/", addr),
		"layers", len(m.Layers()),
		"max_concurrent_renders", viper.GetInt("serve.max_concurrent_renders"),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("Received interrupt signal, shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
