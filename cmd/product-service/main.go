// cmd/product-service/main.go
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
	"mercado/internal/pkg/zookeeper"
	"mercado/internal/saga"
	"mercado/internal/saga/idempotency"
	"mercado/internal/service/product/application"
	"mercado/internal/service/product/infrastructure"
	"mercado/internal/service/product/interfaces"
)

const (
	serviceName = "product-service"
	servicePort = 8083

	stockCommitGroup  = "product-stock-commit"
	orderCancelGroup  = "product-stock-restore"
	consumerRetryWait = 5 * time.Second
	maxRetryAttempts  = 5
)

// main 是组装根：创建并连接所有依赖，然后把控制权交给 bootstrap。
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
	zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper, 5*time.Second)
	if err != nil {
		log.Fatalf("failed to connect zookeeper: %v", err)
	}

	repo, err := infrastructure.NewGormProductRepository(db)
	if err != nil {
		log.Fatalf("failed to init product repository: %v", err)
	}
	guard := idempotency.WithFastPath(
		idempotency.NewGormStore(db),
		idempotency.NewFastPath(redisClient, 24*time.Hour),
	)
	serializer := infrastructure.NewZkStockSerializer(zkConn, 10*time.Second)
	cache := infrastructure.NewRedisProductCache(redisClient)

	routing := saga.NewRouting(cfg.Topics)
	commitFailedWriter := mq.NewKafkaWriter(cfg.Infra.Kafka, routing.Topic(saga.KindStockCommitFailed))
	defer commitFailedWriter.Close()
	publisher := infrastructure.NewKafkaEventPublisher(commitFailedWriter)

	svc := application.NewProductService(repo, guard, serializer, publisher, cache, otel.Tracer(serviceName))

	// 每个入站主题一套消费者：主消费者 + 带退避的重试消费者 + 死信监听
	var runners []bootstrap.Runner
	commitTopic := routing.Topic(saga.KindStockCommitRequested)
	runners = append(runners, consumersFor(cfg, commitTopic, stockCommitGroup, func(reader *kafka.Reader, failure *mq.FailureHandler) *mq.Consumer {
		return interfaces.NewStockCommitConsumer(reader, svc, failure)
	})...)

	cancelTopic := routing.Topic(saga.KindOrderCancelled)
	runners = append(runners, consumersFor(cfg, cancelTopic, orderCancelGroup, func(reader *kafka.Reader, failure *mq.FailureHandler) *mq.Consumer {
		return interfaces.NewOrderCancelledConsumer(reader, svc, failure)
	})...)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		Cfg:         cfg,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			interfaces.NewProductHandler(svc, cfg.Auth.ServiceToken).RegisterRoutes(appCtx.Mux)
		},
		Runners: runners,
	})
}

// consumersFor 为一个主题组装完整的消费拓扑。
func consumersFor(cfg *config.Config, topic, group string, build func(*kafka.Reader, *mq.FailureHandler) *mq.Consumer) []bootstrap.Runner {
	failure := mq.NewFailureHandler(cfg.Infra.Kafka, topic, maxRetryAttempts)

	main := build(mq.NewKafkaReader(cfg.Infra.Kafka, topic, group), failure)

	retry := build(mq.NewKafkaReader(cfg.Infra.Kafka, mq.RetryTopic(topic), group+"-retry"), failure)
	retry.SetDelay(consumerRetryWait)

	dlt := mq.NewDltConsumer(mq.NewKafkaReader(cfg.Infra.Kafka, mq.DeadLetterTopic(topic), group+"-dlt"))

	return []bootstrap.Runner{main, retry, dlt}
}
