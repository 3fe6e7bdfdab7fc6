package service

import (
	"context"
	"fmt"

	"github.com/bitfantasy/pdm/internal/metrics"
	"github.com/bitfantasy/pdm/internal/pdm/entity"
	"github.com/bitfantasy/pdm/internal/shared/feishu"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ChangeNotification 一次重大变更通知
type ChangeNotification struct {
	Tree         *entity.Tree
	Version      *entity.TreeVersion
	Log          *entity.TreeChangeLog
	Stakeholders []string
}

// Notifier 变更通知渠道
type Notifier interface {
	Notify(ctx context.Context, n ChangeNotification) error
}

// LogNotifier 只写日志
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (LogNotifier) Notify(_ context.Context, n ChangeNotification) error {
	zap.L().Info("significant tree change",
		zap.String("tree", n.Tree.Name),
		zap.String("version", n.Version.VersionName),
		zap.String("change_type", string(n.Log.ChangeType)),
		zap.Int("significance", n.Log.SignificanceLevel),
		zap.Strings("stakeholders", n.Stakeholders),
	)
	return nil
}

// FeishuNotifier 发送飞书卡片到群聊及相关人员
type FeishuNotifier struct {
	client *feishu.FeishuClient
	chatID string
}

func NewFeishuNotifier(client *feishu.FeishuClient, chatID string) *FeishuNotifier {
	return &FeishuNotifier{client: client, chatID: chatID}
}

func (f *FeishuNotifier) Notify(ctx context.Context, n ChangeNotification) error {
	changedBy := ""
	if n.Log.ChangedBy != nil {
		changedBy = *n.Log.ChangedBy
	}
	card := feishu.NewStructureChangeCard(feishu.StructureChange{
		TreeName:     n.Tree.Name,
		VersionName:  n.Version.VersionName,
		ChangeType:   string(n.Log.ChangeType),
		Description:  n.Log.Description,
		Significance: n.Log.SignificanceLevel,
		ChangedBy:    changedBy,
		Stakeholders: n.Stakeholders,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	if f.chatID != "" {
		g.Go(func() error {
			return f.client.SendCard(gctx, f.chatID, card)
		})
	}
	for _, uid := range n.Stakeholders {
		uid := uid
		g.Go(func() error {
			if err := f.client.SendUserCard(gctx, uid, card); err != nil {
				return fmt.Errorf("notify %s: %w", uid, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// notifyResult 记录通知结果
func notifyResult(err error) {
	if err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		return
	}
	metrics.Notifications.WithLabelValues("sent").Inc()
}
