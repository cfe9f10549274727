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

	"github.com/rs/zerolog/log"

	"qcom/internal/pkg/nacos"
	"qcom/internal/pkg/tracing"
	"qcom/internal/pkg/utils"
)

// AppCtx 传递给各服务的路由注册回调
type AppCtx struct {
	Mux *http.ServeMux
}

// AppInfo 包含启动一个微服务所需的全部特定信息
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx)
	// OnShutdown 在 HTTP 服务器关闭后执行，用于释放各服务自己的资源
	OnShutdown func(ctx context.Context)
}

// StartService 封装所有微服务共同的启动与优雅关停流程：
// tracer -> 可选的 nacos 注册 -> HTTP 服务 -> 信号等待 -> 逆序清理。
// 阻塞直到收到 SIGINT/SIGTERM 并完成关停。
func StartService(info AppInfo) {
	cfg := GetCurrentConfig()

	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	var namingClient *nacos.Client
	var serviceIP string
	if cfg.Infra.Nacos.Enabled {
		namingClient, err = nacos.NewNacosClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize nacos client")
		}
		serviceIP, err = utils.GetOutboundIP()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to get outbound IP address")
		}
		if err := namingClient.RegisterServiceInstance(info.ServiceName, serviceIP, info.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to register service with nacos")
		}
	}

	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux})
	}
	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}
	go func() {
		log.Info().Str("service", info.ServiceName).Int("port", info.Port).Msg("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Str("service", info.ServiceName).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 清理按依赖的反序执行
	if namingClient != nil {
		if err := namingClient.DeregisterServiceInstance(info.ServiceName, serviceIP, info.Port); err != nil {
			log.Error().Err(err).Msg("error deregistering from nacos")
		}
		namingClient.Close()
	}

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("error shutting down http server")
	}

	if info.OnShutdown != nil {
		info.OnShutdown(ctx)
	}

	if err := tp.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("error shutting down tracer provider")
	}

	log.Info().Str("service", info.ServiceName).Msg("gracefully shut down")
}
