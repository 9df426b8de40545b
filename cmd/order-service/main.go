// cmd/order-service/main.go
package main

import (
	"log"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"mercado/internal/pkg/bootstrap"
	"mercado/internal/pkg/config"
	"mercado/internal/pkg/database"
	"mercado/internal/pkg/mq"
	"mercado/internal/pkg/redis"
	"mercado/internal/saga"
	"mercado/internal/saga/idempotency"
	"mercado/internal/service/order/application"
	"mercado/internal/service/order/infrastructure"
	"mercado/internal/service/order/interfaces"
)

const (
	serviceName = "order-service"
	servicePort = 8082

	commitFailedGroup = "order-compensation"
	checkoutGroup     = "order-checkout-audit"
	consumerRetryWait = 5 * time.Second
	maxRetryAttempts  = 5
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
	redisClient, err := redis.NewClient(cfg.Infra.RedisAddr)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}

	repo, err := infrastructure.NewGormOrderRepository(db)
	if err != nil {
		log.Fatalf("failed to init order repository: %v", err)
	}
	guard := idempotency.WithFastPath(
		idempotency.NewGormStore(db),
		idempotency.NewFastPath(redisClient, 24*time.Hour),
	)

	routing := saga.NewRouting(cfg.Topics)
	orderCancelledWriter := mq.NewKafkaWriter(cfg.Infra.Kafka, routing.Topic(saga.KindOrderCancelled))
	defer orderCancelledWriter.Close()
	publisher := infrastructure.NewKafkaEventPublisher(orderCancelledWriter)

	svc := application.NewOrderService(repo, guard, publisher, otel.Tracer(serviceName))

	var runners []bootstrap.Runner
	commitFailedTopic := routing.Topic(saga.KindStockCommitFailed)
	runners = append(runners, consumersFor(cfg, commitFailedTopic, commitFailedGroup, func(reader *kafka.Reader, failure *mq.FailureHandler) *mq.Consumer {
		return interfaces.NewStockCommitFailedConsumer(reader, svc, failure)
	})...)

	checkoutTopic := routing.Topic(saga.KindCheckoutInitiated)
	runners = append(runners, consumersFor(cfg, checkoutTopic, checkoutGroup, func(reader *kafka.Reader, failure *mq.FailureHandler) *mq.Consumer {
		return interfaces.NewCheckoutInitiatedConsumer(reader, svc, failure)
	})...)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		Cfg:         cfg,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			interfaces.NewOrderHandler(svc, cfg.Auth.ServiceToken).RegisterRoutes(appCtx.Mux)
		},
		Runners: runners,
	})
}

func consumersFor(cfg *config.Config, topic, group string, build func(*kafka.Reader, *mq.FailureHandler) *mq.Consumer) []bootstrap.Runner {
	failure := mq.NewFailureHandler(cfg.Infra.Kafka, topic, maxRetryAttempts)

	main := build(mq.NewKafkaReader(cfg.Infra.Kafka, topic, group), failure)

	retry := build(mq.NewKafkaReader(cfg.Infra.Kafka, mq.RetryTopic(topic), group+"-retry"), failure)
	retry.SetDelay(consumerRetryWait)

	dlt := mq.NewDltConsumer(mq.NewKafkaReader(cfg.Infra.Kafka, mq.DeadLetterTopic(topic), group+"-dlt"))

	return []bootstrap.Runner{main, retry, dlt}
}
