package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantbot/gotrader/internal/analytics"
	"github.com/quantbot/gotrader/internal/bus"
	"github.com/quantbot/gotrader/internal/connector"
	"github.com/quantbot/gotrader/internal/metrics"
	"github.com/quantbot/gotrader/internal/oms"
	"github.com/quantbot/gotrader/internal/risk"
	"github.com/quantbot/gotrader/internal/strategy"
	"github.com/quantbot/gotrader/pkg/config"
	"github.com/quantbot/gotrader/pkg/logger"
	"github.com/quantbot/gotrader/pkg/shutdown"

	// 导入连接器与策略集合以触发 init() 注册
	_ "github.com/quantbot/gotrader/internal/connector/binance"
	_ "github.com/quantbot/gotrader/internal/strategy/vwap"
)

func main() {
	configPath := flag.String("config", "yml/config.yaml", "配置文件路径")
	flag.Parse()

	if err := logger.InitDefault(); err != nil {
		panic(fmt.Sprintf("初始化日志失败: %v", err))
	}

	// .env 先于配置加载：配置文件里的 ${VAR} 展开依赖环境变量
	config.LoadEnvFiles(".env", ".env.local")

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		logrus.Errorf("加载配置失败: %v", err)
		os.Exit(1)
	}
	logrus.Infof("使用配置文件: %s", *configPath)

	// 解析 secret:// 凭证引用（badger 凭证库）
	if err := cfg.ResolveSecrets(); err != nil {
		logrus.Errorf("解析凭证失败: %v", err)
		os.Exit(1)
	}

	// 使用配置重新初始化日志
	if err := logger.Init(logger.Config{
		Level:      cfg.Logging.Level,
		OutputFile: cfg.Logging.OutputFile,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
	}); err != nil {
		logrus.Errorf("重新初始化日志失败: %v", err)
		os.Exit(1)
	}

	logrus.Info("🚀 启动交易机器人...")

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// 可选：metrics/pprof 调试端口
	if cfg.Metrics.Listen != "" {
		if _, err := metrics.StartAsync(rootCtx, cfg.Metrics.Listen); err != nil {
			logrus.Errorf("metrics/pprof 启动失败: %v", err)
		} else {
			logrus.Infof("📊 metrics/pprof 启用: listen=%s (expvar:/debug/vars, pprof:/debug/pprof)", cfg.Metrics.Listen)
		}
	}

	// 事件总线：单一分发循环，所有组件通过事件通信
	eventBus := bus.New(cfg.Bus.QueueSize)

	// 连接器注册表（行情流集合由策略配置推导）
	registry := connector.BuildRegistry(cfg, eventBus)
	if len(registry.Names()) == 0 {
		logrus.Error("没有任何可用的 venue，退出")
		os.Exit(1)
	}

	// 订单管理器：消费 OrderCreate / OrderStatus / OrderFailed
	orderManager := oms.NewManager(registry, eventBus)

	// 风控：消费 Signal，放行后转发 OrderCreate
	riskManager, err := risk.NewManager(cfg.Risk, orderManager, eventBus)
	if err != nil {
		logrus.Errorf("初始化风控失败: %v", err)
		os.Exit(1)
	}

	// 策略引擎
	engine := strategy.BuildEngine(cfg, eventBus)

	// 绩效监控（可选 sqlite 落库）
	var monitor *analytics.Monitor
	if cfg.Analytics.Enabled {
		monitor, err = analytics.NewMonitor(cfg.Analytics)
		if err != nil {
			logrus.Errorf("初始化绩效监控失败: %v", err)
			os.Exit(1)
		}
	}

	// 注册顺序即同类型事件的调用顺序：风控先于绩效看到 Signal
	if err := riskManager.Register(eventBus); err != nil {
		logrus.Errorf("注册风控 handler 失败: %v", err)
		os.Exit(1)
	}
	if err := orderManager.Register(eventBus); err != nil {
		logrus.Errorf("注册订单管理 handler 失败: %v", err)
		os.Exit(1)
	}
	if err := engine.Register(eventBus); err != nil {
		logrus.Errorf("注册策略 handler 失败: %v", err)
		os.Exit(1)
	}
	if monitor != nil {
		if err := monitor.Register(eventBus); err != nil {
			logrus.Errorf("注册绩效 handler 失败: %v", err)
			os.Exit(1)
		}
	}

	if err := eventBus.Start(rootCtx); err != nil {
		logrus.Errorf("启动事件总线失败: %v", err)
		os.Exit(1)
	}

	// 建立交易所连接（单个 venue 失败不阻止其他 venue）
	registry.ConnectAll(rootCtx)

	logrus.Infof("✅ 交易机器人已启动: venues=%v strategies=%d，按 Ctrl+C 停止",
		registry.Names(), len(engine.Strategies()))

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logrus.Info("收到停止信号，正在关闭...")

	shutdownMgr := shutdown.NewManager()

	// 1. 断开连接器：停止新事件流入
	shutdownMgr.OnShutdown(func(ctx context.Context, wg *sync.WaitGroup) {
		defer wg.Done()
		registry.DisconnectAll()
	})

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	shutdownMgr.Shutdown(shutdownCtx)

	// 2. 停止总线：清空已入队事件后退出（在途 OrderStatus 不丢）
	eventBus.Stop()

	// 3. 关闭绩效落库
	if monitor != nil {
		if err := monitor.Close(); err != nil {
			logrus.Errorf("关闭绩效数据库失败: %v", err)
		}
	}

	rootCancel()
	logrus.Info("✅ 交易机器人已停止")
}
