package main

import (
	"flag"
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/silvioiatech/UmbraSIL/agent"
	"github.com/silvioiatech/UmbraSIL/ai"
	"github.com/silvioiatech/UmbraSIL/config"
	"github.com/silvioiatech/UmbraSIL/database"
	"github.com/silvioiatech/UmbraSIL/handlers"
	"github.com/silvioiatech/UmbraSIL/middleware"
	"github.com/silvioiatech/UmbraSIL/models"
	"github.com/silvioiatech/UmbraSIL/pending"
	"github.com/silvioiatech/UmbraSIL/sshpool"
)

func main() {
	configPath := flag.String("config", "config.json", "配置文件路径")
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	cfg := config.AppConfig

	// 数据库可选：不配置DSN就跳过命令审计
	var historyRepo *models.CommandHistoryRepository
	if cfg.DatabaseDSN != "" {
		if err := database.InitDB(cfg.DatabaseDSN); err != nil {
			log.Fatalf("初始化数据库失败: %v", err)
		}
		if err := database.AutoMigrate(&models.CommandHistory{}); err != nil {
			log.Fatalf("数据库迁移失败: %v", err)
		}
		defer database.Close()
		historyRepo = models.NewCommandHistoryRepository(database.DB)
	} else {
		log.Println("📝 未配置数据库，命令历史不会持久化")
	}

	// SSH连接池
	connector := sshpool.NewSSHConnector(sshpool.Credentials{
		Host:           cfg.SSH.Host,
		Port:           cfg.SSH.Port,
		Username:       cfg.SSH.Username,
		PrivateKeyPath: cfg.SSH.PrivateKeyPath,
		Password:       cfg.SSH.Password,
	})
	pool := sshpool.NewPool(connector, cfg.Pool.MaxSessions, cfg.MaxIdleDuration())
	defer pool.Close()

	// AI补全链：按配置顺序主备回退，规则应答器兜底
	var chain []ai.ChainEntry
	for _, pc := range cfg.Providers {
		chain = append(chain, ai.ChainEntry{
			Provider: ai.NewOpenAIProvider(pc.Name, pc.BaseURL, pc.APIKey, pc.Model),
			Timeout:  time.Duration(pc.Timeout) * time.Second,
		})
	}
	pipeline := ai.NewPipeline(chain, ai.NewContextStore(cfg.ContextMax), cfg.SystemPrompt)

	// 危险命令确认管理
	pendingMgr := pending.NewManager(cfg.ConfirmExpiryDuration())
	pendingMgr.StartCleanupTask()

	// 会话清理
	middleware.StartCleanupTask()

	// 编排器与出站通道
	chatHandler := handlers.NewChatHandler()
	orchestrator := agent.NewOrchestrator(pool, pipeline, pendingMgr, chatHandler, historyRepo, agent.Options{
		AcquireTimeout: cfg.AcquireTimeoutDuration(),
		ExecuteTimeout: cfg.ExecuteTimeoutDuration(),
	})
	chatHandler.SetOrchestrator(orchestrator)

	messageHandler := handlers.NewMessageHandler(orchestrator)
	healthHandler := handlers.NewHealthHandler(pool)

	// 路由
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	r.POST("/api/login", middleware.GinLoginHandler)
	r.POST("/api/logout", middleware.GinLogoutHandler)
	r.GET("/healthz", healthHandler.GinHealthz)

	api := r.Group("/api", middleware.GinAuthMiddleware())
	{
		api.POST("/message", messageHandler.GinPostMessage)
		api.POST("/action", messageHandler.GinPostAction)
		api.GET("/chat", chatHandler.GinHandleChat)

		if historyRepo != nil {
			commandHandler := handlers.NewCommandHandler(historyRepo)
			api.GET("/commands", commandHandler.GinGetUserCommands)
			api.GET("/commands/recent", commandHandler.GinGetRecentCommands)
			api.DELETE("/commands", commandHandler.GinClearUserCommands)
		}
	}

	addr := ":" + config.GetPort()
	log.Printf("✓ 服务启动，监听 %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("服务器启动失败: %v", err)
	}
}
