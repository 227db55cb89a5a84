package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	confluent "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	redisDriver "github.com/redis/go-redis/v9"

	"friendsync/internal/config"
	"friendsync/internal/handlers/apiserver"
	appKafka "friendsync/internal/kafka"
	"friendsync/internal/middleware"
	"friendsync/internal/realtime"
	appRedis "friendsync/internal/redis"
	"friendsync/internal/services"
	"friendsync/internal/session"
	"friendsync/internal/storage"
	"friendsync/internal/websocket"
)

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}
	log.Printf("%s %s 配置加载成功。", cfg.AppName, cfg.AppVersion)

	// 2. 初始化数据库连接
	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("无法初始化数据库: %v", err)
	}
	log.Println("数据库连接成功。")

	if err := storage.AutoMigrateTables(db); err != nil {
		log.Printf("警告：数据库表迁移可能失败: %v", err)
	}

	// 3. 初始化 Redis Client
	redisClient := redisDriver.NewClient(&redisDriver.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err = redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("无法连接到 Redis: %v", err)
	}
	log.Println("成功连接到 Redis")

	// 4. 初始化 TokenBlacklist 服务
	tokenBlacklistService := appRedis.NewRedisTokenBlacklist(redisClient)

	// 5. 初始化 Repositories 与事务管理器
	userRepo := storage.NewGormUserRepository(db)
	requestRepo := storage.NewGormFriendRequestRepository(db)
	entryRepo := storage.NewGormFriendEntryRepository(db)
	txManager := storage.NewGormTxManager(db)

	// 6. 初始化变更通知的发布/订阅端
	changePublisher := realtime.NewRedisChangePublisher(redisClient)
	changeSubscriber := realtime.NewRedisChangeSubscriber(redisClient)

	// 7. 初始化 Kafka Producer
	kfkProducer, err := appKafka.NewConfluentKafkaProducer(cfg.Kafka)
	if err != nil {
		log.Fatalf("无法创建 Kafka 生产者: %v", err)
	}
	defer kfkProducer.Close()
	log.Println("Kafka 生产者初始化成功。")

	// 8. 初始化 Services
	notificationService := services.NewKafkaNotificationService(kfkProducer, cfg.Kafka)
	authService := services.NewAuthService(userRepo, cfg.Auth)
	friendService := services.NewFriendService(userRepo, requestRepo, entryRepo, txManager, changePublisher, notificationService)
	userResolver := services.NewUserResolver(userRepo)

	// 9. 初始化 WebSocket Hub 与会话管理器
	hub := websocket.NewHub()
	go hub.Run()

	sessionDeps := session.Deps{
		Users:      userRepo,
		Requests:   requestRepo,
		Entries:    entryRepo,
		Subscriber: changeSubscriber,
		Resolver:   userResolver,
		Sync:       cfg.Sync,
	}
	sessionManager := session.NewManager(sessionDeps, func(identity string, state session.PublishedState) {
		payload, err := websocket.MarshalStateFrame(state)
		if err != nil {
			log.Printf("序列化状态帧失败 (用户 %s): %v", identity, err)
			return
		}
		hub.DeliverDirect(identity, payload)
	})

	// 10. 初始化 Handlers
	authHandler := apiserver.NewAuthHandler(authService, tokenBlacklistService)
	friendHandler := apiserver.NewFriendHandler(friendService, sessionManager)
	wsHandler := apiserver.NewWsHandler(hub, sessionManager, cfg.WebSocket)

	// 11. 设置 HTTP 路由
	r := mux.NewRouter()

	// 11.1 认证路由 (公开)
	authRouter := r.PathPrefix("/api/v1/auth").Subrouter()
	authRouter.HandleFunc("/register", authHandler.Register).Methods(http.MethodPost)
	authRouter.HandleFunc("/login", authHandler.Login).Methods(http.MethodPost)

	authMW := middleware.AuthMiddleware(cfg.Auth, tokenBlacklistService)

	// 11.2 API 子路由 (需要认证)
	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(authMW)

	apiRouter.HandleFunc("/auth/logout", authHandler.LogoutHandler).Methods(http.MethodPost)

	// 好友请求路由
	friendRequestRouter := apiRouter.PathPrefix("/friend-requests").Subrouter()
	friendRequestRouter.HandleFunc("", friendHandler.SendFriendRequestHandler).Methods(http.MethodPost)
	friendRequestRouter.HandleFunc("/{requestID}/respond", friendHandler.RespondFriendRequestHandler).Methods(http.MethodPost)
	friendRequestRouter.HandleFunc("/{requestID}", friendHandler.CancelFriendRequestHandler).Methods(http.MethodDelete)

	// 好友关系路由
	apiRouter.HandleFunc("/friends/{identity}/status", friendHandler.FriendshipStatusHandler).Methods(http.MethodGet)
	apiRouter.HandleFunc("/friends/{identity}", friendHandler.RemoveFriendHandler).Methods(http.MethodDelete)

	// 搜索路由 (防抖异步，结果通过状态帧推送)
	apiRouter.HandleFunc("/search", friendHandler.SearchHandler).Methods(http.MethodPost)

	// 11.3 WebSocket 路由 (通过 token 查询参数认证)
	r.Handle(cfg.Server.WebSocketPath, authMW(wsHandler)).Methods(http.MethodGet)

	// 12. 初始化并启动 Kafka 消费者 (好友请求通知 -> WebSocket 推送)
	notificationConsumer, err := appKafka.NewConfluentKafkaConsumer(cfg.Kafka)
	if err != nil {
		log.Fatalf("无法创建通知 Kafka 消费者: %v", err)
	}
	defer notificationConsumer.Close()

	consumerCtx, cancelConsumers := context.WithCancel(context.Background())
	defer cancelConsumers()

	go func() {
		topics := []string{cfg.Kafka.NotificationsTopic}
		log.Printf("Kafka 通知消费者启动，监听 topic: %s, GroupID: %s", cfg.Kafka.NotificationsTopic, cfg.Kafka.ConsumerGroup)
		err := notificationConsumer.Consume(consumerCtx, topics, cfg.Kafka.ConsumerGroup, func(ctx context.Context, msg *confluent.Message) error {
			var notification services.FriendRequestNotification
			if err := json.Unmarshal(msg.Value, &notification); err != nil {
				log.Printf("通知消息解析失败，已跳过: %v", err)
				return nil
			}
			frame, err := websocket.MarshalNotificationFrame(msg.Value)
			if err != nil {
				return err
			}
			hub.DeliverDirect(notification.RecipientID, frame)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Kafka 通知消费者错误: %v", err)
		}
		log.Println("Kafka 通知消费者 goroutine 已停止。")
	}()

	// 13. 启动 HTTP 服务器并实现优雅关闭
	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins(cfg.Server.CORS.AllowedOrigins),
		handlers.AllowedMethods(cfg.Server.CORS.AllowedMethods),
		handlers.AllowedHeaders(cfg.Server.CORS.AllowedHeaders),
		handlers.ExposedHeaders(cfg.Server.CORS.ExposedHeaders),
		handlers.MaxAge(cfg.Server.CORS.MaxAge),
	}
	if cfg.Server.CORS.AllowCredentials {
		corsOptions = append(corsOptions, handlers.AllowCredentials())
	}
	corsHandler := handlers.CORS(corsOptions...)(r)

	srv := &http.Server{
		Addr:           serverAddr,
		Handler:        corsHandler,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    time.Second * 60,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		log.Printf("API 服务器启动于 %s", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("API 服务器启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("收到关闭信号，正在关闭 API 服务器...")

	cancelConsumers()
	sessionManager.CloseAll()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("API 服务器强制关闭: %v", err)
	}

	log.Println("API 服务器已成功关闭")
}
