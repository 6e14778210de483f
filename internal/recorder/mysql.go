package recorder

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"rsi-sentry/pkg/types"
)

// AlertEvent 预警历史表
type AlertEvent struct {
	ID         uint             `gorm:"primaryKey" json:"id"`
	ChatID     string           `gorm:"type:varchar(32);not null;index:idx_chat_created" json:"chat_id"`
	Kind       string           `gorm:"type:varchar(20);not null" json:"kind"`
	Price      decimal.Decimal  `gorm:"type:decimal(20,8);not null" json:"price"`
	Threshold  *decimal.Decimal `gorm:"type:decimal(20,8)" json:"threshold"`
	RSI        float64          `gorm:"type:decimal(6,2);not null" json:"rsi"`
	CandleTime int64            `gorm:"not null" json:"candle_time"`
	Delivered  bool             `gorm:"default:false" json:"delivered"`
	Error      string           `gorm:"type:varchar(255)" json:"error"`
	CreatedAt  time.Time        `gorm:"index:idx_chat_created" json:"created_at"`
}

// MySQLRecorder 基于GORM的预警历史
type MySQLRecorder struct {
	db     *gorm.DB
	config types.MySQLConfig
}

// NewMySQLRecorder 连接MySQL并迁移表结构
func NewMySQLRecorder(config types.MySQLConfig) (*MySQLRecorder, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		config.Username,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库实例失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&AlertEvent{}); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	zap.L().Info("✅ MySQL预警历史已启用",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("database", config.Database))

	return &MySQLRecorder{db: db, config: config}, nil
}

func (m *MySQLRecorder) RecordAlert(ctx context.Context, n types.Notification, delivered bool, sendErr error) error {
	event := toAlertEvent(n, delivered, sendErr, time.Now())
	if err := m.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("保存预警记录失败: %w", err)
	}
	return nil
}

// Recent 最近的预警，按时间倒序
func (m *MySQLRecorder) Recent(ctx context.Context, chatID string, limit int) ([]Entry, error) {
	var events []AlertEvent
	err := m.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(events))
	for _, e := range events {
		entries = append(entries, e.toEntry())
	}
	return entries, nil
}

func (m *MySQLRecorder) Enabled() bool { return true }

// Close 关闭数据库连接
func (m *MySQLRecorder) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toAlertEvent(n types.Notification, delivered bool, sendErr error, now time.Time) *AlertEvent {
	event := &AlertEvent{
		ChatID:     n.ChatID,
		Kind:       string(n.Kind),
		Price:      n.Price,
		Threshold:  n.Threshold,
		RSI:        n.RSI,
		CandleTime: n.CandleTime.UnixMilli(),
		Delivered:  delivered,
		CreatedAt:  now,
	}
	if sendErr != nil {
		event.Error = truncateUTF8(sendErr.Error(), 255)
	}
	return event
}

// truncateUTF8 截断到不超过 limit 字节，且不拆开多字节字符
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func (e AlertEvent) toEntry() Entry {
	return Entry{
		ChatID:     e.ChatID,
		Kind:       types.NotificationKind(e.Kind),
		Price:      e.Price,
		Threshold:  e.Threshold,
		RSI:        e.RSI,
		CandleTime: time.UnixMilli(e.CandleTime),
		Delivered:  e.Delivered,
		Error:      e.Error,
		CreatedAt:  e.CreatedAt,
	}
}
