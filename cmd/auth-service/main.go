// cmd/auth-service/main.go
package main

import (
	"log"

	"go.opentelemetry.io/otel"

	"mercado/internal/pkg/bootstrap"
	"mercado/internal/pkg/config"
	"mercado/internal/pkg/httpclient"
	"mercado/internal/service/auth/application"
	"mercado/internal/service/auth/infrastructure"
	"mercado/internal/service/auth/interfaces"
	"mercado/internal/service/auth/token"
)

const (
	serviceName = "auth-service"
	servicePort = 8085
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Auth.AccessSecret == "" || cfg.Auth.RefreshSecret == "" {
		log.Fatal("auth secrets must be configured")
	}

	tracer := otel.Tracer(serviceName)
	client := httpclient.NewClient(tracer, cfg.Auth.ServiceToken)
	users := infrastructure.NewHTTPUserGateway(client, cfg.Services.UserURL)

	tokens := token.NewHelper(
		cfg.Auth.AccessSecret,
		cfg.Auth.RefreshSecret,
		cfg.Auth.AccessExpire,
		cfg.Auth.RefreshExpire,
	)
	svc := application.NewAuthService(users, tokens)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		Cfg:         cfg,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			interfaces.NewAuthHandler(svc).RegisterRoutes(appCtx.Mux)
		},
	})
}
