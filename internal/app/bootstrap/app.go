// Package bootstrap 编排常驻模式的统一启动流程。
package bootstrap

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/bms-bridge/internal/api"
	"github.com/taoyao-code/bms-bridge/internal/api/middleware"
	"github.com/taoyao-code/bms-bridge/internal/bridge"
	cfgpkg "github.com/taoyao-code/bms-bridge/internal/config"
	"github.com/taoyao-code/bms-bridge/internal/health"
	"github.com/taoyao-code/bms-bridge/internal/httpserver"
	"github.com/taoyao-code/bms-bridge/internal/metrics"
	"github.com/taoyao-code/bms-bridge/internal/outbound"
	"github.com/taoyao-code/bms-bridge/internal/storage"
	"github.com/taoyao-code/bms-bridge/internal/storage/gormrepo"
	pgstorage "github.com/taoyao-code/bms-bridge/internal/storage/pg"
	redisstorage "github.com/taoyao-code/bms-bridge/internal/storage/redis"
)

// Run 统一启动流程：先把可选的下游（数据库、Redis、MQTT）准备好，
// 再打开串口开始轮询，最后等待关闭信号。
func Run(cfg *cfgpkg.Config, log *zap.Logger) error {
	log.Info("starting bms bridge", zap.String("device", cfg.Serial.Device))

	// ========== 阶段1: 基础组件 ==========
	reg := metrics.NewRegistry()
	appm := metrics.NewAppMetrics(reg)
	healthAgg := health.NewAggregator()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ========== 阶段2: 可选存储 ==========
	var (
		repo    storage.Repo
		history *pgstorage.MeasurementWriter
		pubs    outbound.Fanout
	)

	if cfg.Database.Enabled {
		db, err := gormrepo.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.ConnMaxLifetime)
		if err != nil {
			log.Error("database initialization failed", zap.Error(err))
			return err
		}
		repo = gormrepo.New(db)
		log.Info("database ready", zap.String("dsn", maskDSN(cfg.Database.DSN)))

		pool, err := pgstorage.NewPool(ctx, cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.ConnMaxLifetime, log)
		if err != nil {
			log.Error("pgx pool initialization failed", zap.Error(err))
			return err
		}
		defer pool.Close()
		healthAgg.AddChecker(health.NewDatabaseChecker(pool))

		history, err = pgstorage.NewMeasurementWriter(ctx, pool, cfg.Database.FlushEvery, log)
		if err != nil {
			log.Error("measurement writer initialization failed", zap.Error(err))
			return err
		}
		go history.Run(ctx)
		pubs = append(pubs, history)
		pubs = append(pubs, &repoPublisher{repo: repo, log: log})
		log.Info("measurement writer started")
	}

	if cfg.Redis.Enabled {
		redisClient, err := redisstorage.NewClient(cfg.Redis)
		if err != nil {
			log.Error("redis initialization failed", zap.Error(err))
			return err
		}
		defer redisClient.Close()
		healthAgg.AddChecker(health.NewRedisChecker(redisClient))
		mirror := redisstorage.NewValueMirror(redisClient, log)
		go mirror.Run(ctx)
		pubs = append(pubs, mirror)
		log.Info("redis value mirror started", zap.String("addr", cfg.Redis.Addr))
	}

	if cfg.MQTT.Enabled {
		mq, err := outbound.NewMQTT(cfg.MQTT, log)
		if err != nil {
			log.Error("mqtt initialization failed", zap.Error(err))
			return err
		}
		defer mq.Close()
		pubs = append(pubs, mq)
	}

	var pub outbound.Publisher = pubs
	if len(pubs) == 0 {
		pub = outbound.Nop{}
		log.Warn("no downstream publisher configured, decoded values only reachable via http api")
	}

	// ========== 阶段3: 打开串口并装配桥接 ==========
	br, err := bridge.New(cfg.Serial, cfg.Poll, pub, log, appm)
	if err != nil {
		log.Error("serial initialization failed", zap.Error(err))
		return err
	}
	healthAgg.AddChecker(health.NewSerialChecker(br.Transport(), cfg.Serial.WarnDepth))

	// ========== 阶段4: HTTP服务 ==========
	var metricsHandler = metrics.Handler(reg)
	if !cfg.Metrics.Enable {
		metricsHandler = nil
	}
	httpSrv := httpserver.New(cfg.HTTP, cfg.Metrics.Path, metricsHandler)
	httpSrv.Register(func(r *gin.Engine) {
		authCfg := middleware.AuthConfig{
			APIKeys: cfg.API.Auth.APIKeys,
			Enabled: cfg.API.Auth.Enabled,
		}
		api.RegisterRoutes(r, br.Manager(), repo, history, authCfg, log)
		health.RegisterHTTPRoutes(r, healthAgg)
	})

	go func() {
		if err := httpSrv.Start(); err != nil {
			log.Error("http server error", zap.Error(err))
		}
	}()
	log.Info("http server started", zap.String("addr", cfg.HTTP.Addr))

	// ========== 阶段5: 启动轮询 ==========
	runErr := make(chan error, 1)
	go func() { runErr <- br.Run(ctx) }()
	log.Info("polling started", zap.Duration("period", cfg.Poll.Period))

	// ========== 阶段6: 等待关闭信号或串口失效 ==========
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var result error
	select {
	case <-sigCh:
		log.Info("received shutdown signal, gracefully shutting down...")
	case err := <-runErr:
		if err != nil {
			log.Error("serial transport failed", zap.Error(err))
			result = err
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	log.Info("shutdown complete")
	return result
}

// repoPublisher 把上线事件转成电池登记，实现 outbound.Publisher
type repoPublisher struct {
	repo storage.Repo
	log  *zap.Logger
}

func (p *repoPublisher) PublishUpdate(addr byte, key string, value float64) {}

func (p *repoPublisher) PublishOnline(addr byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := p.repo.EnsureBattery(ctx, addr); err != nil {
		p.log.Warn("battery registration failed", zap.Uint8("battery", addr), zap.Error(err))
	}
}

func (p *repoPublisher) PublishDiscovery(addr byte) {}

// maskDSN 脱敏数据库连接字符串（隐藏密码）
func maskDSN(dsn string) string {
	if idx := strings.Index(dsn, "@"); idx > 0 {
		if pwdIdx := strings.LastIndex(dsn[:idx], ":"); pwdIdx > 0 {
			return dsn[:pwdIdx+1] + "****" + dsn[idx:]
		}
	}
	return dsn
}
