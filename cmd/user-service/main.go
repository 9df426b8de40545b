// cmd/user-service/main.go
package main

import (
	"log"

	"mercado/internal/pkg/bootstrap"
	"mercado/internal/pkg/config"
	"mercado/internal/pkg/database"
	"mercado/internal/service/user/application"
	"mercado/internal/service/user/infrastructure"
	"mercado/internal/service/user/interfaces"
)

const (
	serviceName = "user-service"
	servicePort = 8084
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.Open(cfg.Infra.MySQLDSN)
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}
	repo, err := infrastructure.NewGormUserRepository(db)
	if err != nil {
		log.Fatalf("failed to init user repository: %v", err)
	}

	svc := application.NewUserService(repo)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		Cfg:         cfg,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			interfaces.NewUserHandler(svc, cfg.Auth.ServiceToken).RegisterRoutes(appCtx.Mux)
		},
	})
}
