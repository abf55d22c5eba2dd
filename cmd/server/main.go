package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	apihttp "cartograph/api/api/http"
	"cartograph/api/api/http/controller/mapper"
	"cartograph/api/api/ws"
	mycache "cartograph/api/cache"
	"cartograph/api/command"
	"cartograph/api/config"
	"cartograph/api/log"
	"cartograph/api/service"
	"cartograph/api/system"
	"cartograph/api/worldmap"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "config file (default ./config.yaml)")
	pflag.Parse()

	conf := config.GetConfig()
	if *configPath != "" {
		c, err := config.Load(*configPath)
		if err != nil {
			log.Fatal("load config: ", err)
		}
		conf = c
	}
	if err := log.Init(log.Options{
		Level:      conf.Log.Level,
		File:       conf.Log.File,
		MaxSizeMB:  conf.Log.MaxSizeMB,
		MaxBackups: conf.Log.MaxBackups,
		MaxAgeDays: conf.Log.MaxAgeDays,
	}); err != nil {
		log.Fatal("init log: ", err)
	}
	defer log.Close()
	if conf.Server.JwtSecret == "" {
		log.Fatal("server.jwt_secret must be set")
	}
	if err := mycache.Configure(conf.Mapper.TableCacheMB); err != nil {
		log.Fatal("table cache: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	save, tables := openBackend(conf)
	defer system.CloseDb()

	// 写盘协程比 http 活得久，退出前还要 Flush
	saverCtx, cancelSaver := context.WithCancel(context.Background())
	defer cancelSaver()
	saver := service.NewTableSaver(tables)
	saver.Start(saverCtx)

	hub := ws.NewHub()
	server := service.NewMapServer(service.ServerOptions{
		Enabled:            conf.Mapper.Enabled,
		BufferSize:         conf.Mapper.BufferSize,
		Compress:           conf.Mapper.Compress,
		AttributePartLimit: conf.Mapper.AttributePartLimit,
		Language:           conf.Mapper.Language,
	}, service.ServerDeps{
		Save:      save,
		Sink:      hub,
		Messenger: hub,
		Waypoints: worldmap.NewWaypointStore(),
		Tables:    tables,
		Saver:     saver,
	})
	log.Info("map server status: ", server.Load())
	hub.Attach(server, command.NewServerMapper(server))
	mapper.Bind(server)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), cors.New(corsConfig(conf.Server.CorsOrigins)))
	apihttp.Routers(r.Group("/"), hub, []byte(conf.Server.JwtSecret))

	srv := &http.Server{Addr: conf.Server.Addr, Handler: r}
	go func() {
		log.Info("listening on ", conf.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server: ", err)
			stop()
		}
	}()

	go worldSaveLoop(ctx, server, time.Duration(conf.Mapper.WorldSaveSeconds)*time.Second)

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown: ", err)
	}
	if err := server.OnGameWorldSave(); err != nil {
		log.Error("final world save failed: ", err)
	}
	if err := saver.Flush(shutdownCtx); err != nil {
		log.Error("flush cartography tables: ", err)
	}
	if n := saver.Pending(); n > 0 {
		log.Warnf("%d cartography table saves lost", n)
	}
}

// openBackend 按配置选择存档与制图桌存储
func openBackend(conf *config.Config) (worldmap.SaveGame, service.TableStore) {
	switch conf.Mapper.SaveBackend {
	case config.SaveBackendMySQL:
		if err := system.InitDb(conf.Database); err != nil {
			log.Fatal("init db: ", err)
		}
		db := system.GetDb()
		return system.NewDBSaveGame(db), system.NewDBTableStore(db)
	case config.SaveBackendFile:
		save := system.NewFileSaveGame(conf.Mapper.SaveDir)
		return save, system.NewSaveGameTableStore(save)
	case config.SaveBackendMemory:
		return system.NewMemorySaveGame(), system.NewMemoryTableStore()
	}
	log.Fatalf("unknown save backend %q", conf.Mapper.SaveBackend)
	return nil, nil
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}

func worldSaveLoop(ctx context.Context, server *service.MapServer, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = server.OnGameWorldSave()
		}
	}
}
