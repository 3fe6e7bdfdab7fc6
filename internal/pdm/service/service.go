package service

import (
	"context"
	"time"

	"github.com/bitfantasy/pdm/internal/config"
	"github.com/bitfantasy/pdm/internal/pdm/repository"
	"github.com/bitfantasy/pdm/internal/pdm/sse"
	"github.com/bitfantasy/pdm/internal/shared/feishu"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Services 服务集合
type Services struct {
	Prefix   *PrefixService
	Code     *CodeService
	Tree     *TreeService
	Share    *ShareService
	Version  *TreeVersionService
	Quantity *QuantityService
	Export   *ExportService
	Events   *sse.Hub
}

// NewServices 创建服务集合
func NewServices(repos *repository.Repositories, rdb *redis.Client, cfg *config.Config) *Services {
	// 通知渠道：配置了飞书则发卡片，否则只写日志
	var notifier Notifier = NewLogNotifier()
	if cfg.Feishu.AppID != "" && cfg.Feishu.AppSecret != "" && cfg.PDM.NotifyEnabled {
		client := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret)
		notifier = NewFeishuNotifier(client, cfg.Feishu.NotifyChatID)
	}

	var minioClient *minio.Client
	if cfg.MinIO.Endpoint != "" {
		var err error
		minioClient, err = minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			zap.L().Warn("minio disabled", zap.Error(err))
			minioClient = nil
		}
	}

	hub := sse.NewHub()
	cache := NewStructureCache(rdb, cfg.PDM.StructureCacheTTL)

	prefixSvc := NewPrefixService(repos)
	versionSvc := NewTreeVersionService(repos, notifier, hub)
	treeSvc := NewTreeService(repos, versionSvc, cache)
	shareSvc := NewShareService(repos, versionSvc, cache, cfg.PDM.MaxShareDepth)
	quantitySvc := NewQuantityService(repos, versionSvc)

	return &Services{
		Prefix:   prefixSvc,
		Code:     NewCodeService(repos, prefixSvc),
		Tree:     treeSvc,
		Share:    shareSvc,
		Version:  versionSvc,
		Quantity: quantitySvc,
		Export:   NewExportService(treeSvc, repos, minioClient, cfg.PDM.ExportBucket, cfg.PDM.ExportURLExpiry),
		Events:   hub,
	}
}

// actor 空用户视为匿名
func actor(userID string) *string {
	if userID == "" {
		return nil
	}
	return &userID
}

func now() time.Time {
	return time.Now()
}

// detach 提交后的异步工作不跟随请求取消
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
