// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"mercado/internal/pkg/config"
	"mercado/internal/pkg/logger"
	"mercado/internal/pkg/tracing"
)

// Runner 是随服务一起启停的后台组件（Kafka 消费者、DLT 监听等）。
type Runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

type AppCtx struct {
	Mux *http.ServeMux
	Cfg *config.Config
}

// AppInfo 描述启动一个微服务所需的全部信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	Cfg              *config.Config
	RegisterHandlers func(appCtx AppCtx) // 注册该服务自己的 HTTP 路由
	Runners          []Runner
}

// StartService 封装所有微服务共同的启动和优雅关停流程：
// 日志、Tracer、/healthz、/metrics、HTTP Server、后台 Runner。
func StartService(info AppInfo) {
	logger.Init(info.ServiceName)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := logger.Ctx(ctx)

	tp, err := tracing.InitTracerProvider(info.ServiceName, info.Cfg.Infra.Jaeger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Cfg: info.Cfg})
	}

	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Int("port", info.Port).Msgf("%s listening", info.ServiceName)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	for _, r := range info.Runners {
		r := r
		g.Go(func() error { return r.Start(gctx) })
	}

	// 阻塞直到收到退出信号或某个组件启动失败
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msgf("shutting down %s", info.ServiceName)
	case <-gctx.Done():
		log.Error().Err(gctx.Err()).Msg("component failed, shutting down")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// 关停顺序：先停消费者（不再接新工作），再停 HTTP，最后冲刷 trace
	for _, r := range info.Runners {
		r.Stop(shutdownCtx)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down http server")
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down tracer provider")
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("component exited with error")
	}

	log.Info().Msgf("%s gracefully shut down", info.ServiceName)
}
