package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/msfg/msfg/cmd/msfgd/handlers"
	"github.com/msfg/msfg/pkg/admin"
	kcs "github.com/msfg/msfg/pkg/configs/server"
	"github.com/msfg/msfg/pkg/provision/cache"
	"github.com/msfg/msfg/pkg/provision/counter"
	"github.com/msfg/msfg/pkg/provision/download"
	"github.com/msfg/msfg/pkg/provision/installer"
	"github.com/msfg/msfg/pkg/provision/java"
	"github.com/msfg/msfg/pkg/provision/loader"
	"github.com/msfg/msfg/pkg/provision/logbook"
	"github.com/msfg/msfg/pkg/provision/mcjars"
	"github.com/msfg/msfg/pkg/provision/mojang"
	"github.com/msfg/msfg/pkg/provision/pipeline"
	"github.com/msfg/msfg/pkg/utils/archive"
	"github.com/msfg/msfg/pkg/utils/echoutil"
	"github.com/msfg/msfg/pkg/utils/filewatch"
	kos "github.com/msfg/msfg/pkg/utils/os"
)

func main() {
	configPath := flag.String("config-path", "", "server config path")
	loglevel := flag.String("loglevel", "", "log level. debug|info|warn|error|off")
	flag.Parse()

	conf, err := kcs.LoadServerConfig(*configPath)
	if err != nil {
		log.Fatalf("can not read configration: %s", err)
	}
	if *loglevel != "" {
		conf.LogLevel = *loglevel
	}
	if port := kos.GetEnvOr("MSFG_PORT", ""); port != "" {
		conf.Listen = ":" + port
	}

	storage, err := conf.ResolveStorage()
	if err != nil {
		log.Fatalf("can not resolve storage: %s", err)
	}
	log.Printf("storage root: %s", storage.Root)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *configPath != "" {
		// quit on config change; the supervisor restarts the daemon
		// with the new settings.
		wctx, cancel, err := filewatch.UntilModifyContext(ctx, *configPath)
		if err != nil {
			log.Fatalf("can not watch configration: %s", err)
		}
		defer cancel()
		ctx = wctx
	}

	e := echo.New()
	echoutil.SetLevel(e, conf.LogLevel)
	e.HTTPErrorHandler = func(err error, ctx echo.Context) {
		e.DefaultHTTPErrorHandler(err, ctx)
		e.Logger.Error(err)
	}
	e.Use(echoutil.LogHandlerFunc)
	e.Use(middleware.Recover())

	logs := logbook.New()
	downloader := download.New(logs, conf.Download.Timeout(), conf.Download.Retries)
	artifactCache := cache.New(storage.CacheDir, conf.Cache.MaxAge(), conf.Cache.MaxSizeBytes)
	defer artifactCache.Stop()
	count := counter.New(storage.CountFile)

	loaderDeps := loader.Deps{
		Logs:       logs,
		Downloader: downloader,
		Cache:      artifactCache,
		MCJars:     mcjars.NewClient(),
		Mojang:     mojang.NewClient(),
		Java:       java.Resolver{},
		Installer: &installer.Supervisor{
			Logs:    logs,
			Overall: conf.Installer.Timeout(),
			Stuck:   conf.Installer.NoOutputTimeout(),
		},
		MaxArtifactBytes: conf.MaxUploadSizeBytes,
		NeoForgeTimeout:  conf.Installer.NeoForgeTimeout(),
	}

	pipe := &pipeline.Pipeline{
		Logs:         logs,
		Downloader:   downloader,
		Counter:      count,
		LoaderDeps:   loaderDeps,
		ServerRoot:   storage.ServerRoot,
		MaxFileBytes: conf.MaxUploadSizeBytes,
		Workers:      conf.Download.Workers,
		CopyWorkers:  conf.Download.CopyWorkers,
		CleanupDelay: conf.CleanupDelay(),
		ZipLimits:    archive.Limits{},
	}

	accessLog := admin.NewAccessLog()
	e.Use(echoutil.AccessRecorder(func(at time.Time, remoteIP, method, path string, status int) {
		accessLog.Record(at.Format(time.RFC3339), remoteIP, method, path, status)
	}))

	users, err := admin.LoadUsers(ctx, conf.Admin.UsersFile)
	if err != nil {
		log.Fatalf("can not load admin users: %s", err)
	}
	tokens := admin.NewTokens(conf.Admin.TokenSecret, conf.Admin.SessionAge())

	// handlers
	{
		e.POST("/api/generate", handlers.GenerateHandler(pipe, logs, conf.MaxUploadSizeBytes))
		e.GET("/api/logs/:request_id", handlers.LogStreamHandler(logs))
		e.GET("/download/:request_id", handlers.DownloadHandler(pipe))
		e.POST("/api/check_loader", handlers.CheckLoaderHandler(conf.MaxUploadSizeBytes))
		e.GET("/api/count", handlers.CountHandler(count))

		e.POST("/admin/api/login", handlers.LoginHandler(users, tokens))
		adminAPI := e.Group("/admin/api", tokens.Middleware())
		adminAPI.GET("/stats", handlers.StatsHandler(storage.Root))
		adminAPI.GET("/access-log", handlers.AccessLogHandler(accessLog))
		adminAPI.GET("/access-log/export", handlers.AccessLogCSVHandler(accessLog))
	}

	go func() {
		<-ctx.Done()
		graceful, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := e.Shutdown(graceful); err != nil {
			log.Printf("error on shutdown: %s", err)
		}
	}()

	if err := e.Start(conf.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		e.Logger.Fatal(err)
	}
}
