package main

import (
	"context"
	"os"
	"sync"

	"github.com/adwski/ghostchat/backend/auth"
	"github.com/adwski/ghostchat/backend/config"
	"github.com/adwski/ghostchat/backend/identity"
	httpServer "github.com/adwski/ghostchat/backend/server/http"
	websocketServer "github.com/adwski/ghostchat/backend/server/websocket"
	"github.com/adwski/ghostchat/backend/service"
	store "github.com/adwski/ghostchat/backend/storage/memory"
	sw "github.com/adwski/ghostchat/backend/switch"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger = logger.Level(cfg.LogLevel)

	ids, err := identity.NewGenerator()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init identity generator")
	}

	svc := service.NewService(service.Config{
		RoomStore: store.NewMemStore(cfg.HistoryLimit),
		Sessions:  store.NewSessions(),
		Switch:    sw.NewSwitch(&logger),
		Identity:  ids,
		Secrets:   auth.NewSecretHasher(cfg.SecretCost),
		Logger:    &logger,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:       &logger,
		StatsService: svc,
		ListenAddr:   cfg.APIListenAddr,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:        &logger,
		RoomService:   svc,
		ListenAddr:    cfg.ListenAddr,
		SendQueueSize: cfg.SendQueueSize,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(2)
	go httpSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)

	go func() {
		select {
		case err := <-errc:
			logger.Error().Err(err).Msg("unexpected server error, shutting down")
			cancel()
			wg.Wait()
			os.Exit(1)
		case <-ctx.Done():
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"servers": func(context.Context) error {
				logger.Warn().Msg("interrupted")
				cancel()
				wg.Wait()
				return nil
			},
		},
	)
	exitCode := <-wait
	logger.Info().Int("code", exitCode).Msg("exited")
	os.Exit(exitCode)
}
