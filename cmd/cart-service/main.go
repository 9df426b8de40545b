// cmd/cart-service/main.go
package main

import (
	"log"

	"go.opentelemetry.io/otel"

	"mercado/internal/pkg/bootstrap"
	"mercado/internal/pkg/config"
	"mercado/internal/pkg/database"
	"mercado/internal/pkg/httpclient"
	"mercado/internal/pkg/mq"
	"mercado/internal/saga"
	"mercado/internal/service/cart/application"
	"mercado/internal/service/cart/infrastructure"
	"mercado/internal/service/cart/interfaces"
)

const (
	serviceName = "cart-service"
	servicePort = 8081
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
	repo, err := infrastructure.NewGormCartRepository(db)
	if err != nil {
		log.Fatalf("failed to init cart repository: %v", err)
	}

	tracer := otel.Tracer(serviceName)
	client := httpclient.NewClient(tracer, cfg.Auth.ServiceToken)
	products := infrastructure.NewHTTPProductGateway(client, cfg.Services.ProductURL)
	orders := infrastructure.NewHTTPOrderGateway(client, cfg.Services.OrderURL)

	routing := saga.NewRouting(cfg.Topics)
	checkoutWriter := mq.NewKafkaWriter(cfg.Infra.Kafka, routing.Topic(saga.KindCheckoutInitiated))
	defer checkoutWriter.Close()
	commitWriter := mq.NewKafkaWriter(cfg.Infra.Kafka, routing.Topic(saga.KindStockCommitRequested))
	defer commitWriter.Close()
	publisher := infrastructure.NewKafkaEventPublisher(checkoutWriter, commitWriter)

	svc := application.NewCartService(repo, products, orders, publisher, tracer)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		Cfg:         cfg,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			interfaces.NewCartHandler(svc).RegisterRoutes(appCtx.Mux)
		},
	})
}
