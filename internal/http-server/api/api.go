package api

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"membergate/internal/config"
	"membergate/internal/http-server/handlers/campaigns"
	"membergate/internal/http-server/handlers/errors"
	"membergate/internal/http-server/handlers/stats"
	"membergate/internal/http-server/handlers/targets"
	"membergate/internal/http-server/middleware/authenticate"
	"membergate/internal/http-server/middleware/timeout"
	"membergate/lib/sl"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

type Handler interface {
	authenticate.Authenticate
	stats.Core
	targets.Core
	campaigns.Core
}

func New(conf *config.Config, log *slog.Logger, handler Handler) error {

	server := Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	router := chi.NewRouter()
	router.Use(timeout.Timeout(5))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.NotFound(errors.NotFound(log))
	router.MethodNotAllowed(errors.NotAllowed(log))

	router.Handle("/metrics", promhttp.Handler())

	router.Route("/v1", func(rootApi chi.Router) {
		rootApi.Use(authenticate.New(log, handler))
		rootApi.Route("/stats/{chatId}", func(st chi.Router) {
			st.Get("/days", stats.Days(log, handler))
			st.Get("/campaigns", stats.TopCampaigns(log, handler))
		})
		rootApi.Route("/targets/{chatId}", func(tg chi.Router) {
			tg.Get("/", targets.List(log, handler))
			tg.Post("/", targets.Add(log, handler))
			tg.Delete("/", targets.Remove(log, handler))
		})
		rootApi.Route("/campaigns/{chatId}", func(cp chi.Router) {
			cp.Get("/", campaigns.List(log, handler))
			cp.Post("/", campaigns.Register(log, handler))
		})
	})

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:      router,
		ErrorLog:     httpLog,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverAddress := fmt.Sprintf("%s:%s", conf.Listen.BindIp, conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	server.log.Info("starting api server", slog.String("address", serverAddress))

	return server.httpServer.Serve(listener)
}
