package notifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Message 发往某个聊天的一条消息
type Message struct {
	ChatID   string
	Text     string
	WithMenu bool // 附带操作菜单键盘
}

// ErrInvalidChatID 聊天ID不是合法的整数
var ErrInvalidChatID = errors.New("invalid chat id")

// Interface 通知接口
type Interface interface {
	Send(ctx context.Context, msg Message) error
}

// safePadding 安全地计算填充空格数量，避免负数
func safePadding(content string, totalWidth int) int {
	// 使用utf8.RuneCountInString计算实际显示字符数，而不是字节数
	padding := totalWidth - utf8.RuneCountInString(content) - 4
	if padding < 0 {
		padding = 0
	}
	return padding
}

// ConsoleNotifier 控制台通知器，把消息画成一个框输出
type ConsoleNotifier struct {
	out   io.Writer
	mutex sync.Mutex
}

func NewConsoleNotifier() *ConsoleNotifier {
	return &ConsoleNotifier{out: os.Stdout}
}

func (cn *ConsoleNotifier) Send(ctx context.Context, msg Message) error {
	cn.mutex.Lock()
	defer cn.mutex.Unlock()

	const width = 60
	var b strings.Builder
	b.WriteString("\n╔" + strings.Repeat("═", width) + "╗\n")
	header := fmt.Sprintf("💬 chat %s", msg.ChatID)
	b.WriteString("║ " + header + strings.Repeat(" ", safePadding(header, width+2)) + " ║\n")
	b.WriteString("║" + strings.Repeat(" ", width) + "║\n")
	for _, line := range strings.Split(msg.Text, "\n") {
		b.WriteString("║ " + line + strings.Repeat(" ", safePadding(line, width+2)) + " ║\n")
	}
	b.WriteString("╚" + strings.Repeat("═", width) + "╝\n")

	_, err := io.WriteString(cn.out, b.String())
	return err
}

// MultiNotifier 依次发送到多个通知渠道，第一个渠道的结果决定是否送达
type MultiNotifier struct {
	primary Interface
	mirrors []Interface
}

func NewMultiNotifier(primary Interface, mirrors ...Interface) *MultiNotifier {
	return &MultiNotifier{primary: primary, mirrors: mirrors}
}

func (m *MultiNotifier) Send(ctx context.Context, msg Message) error {
	err := m.primary.Send(ctx, msg)

	for _, mirror := range m.mirrors {
		if mirrorErr := mirror.Send(ctx, msg); mirrorErr != nil {
			zap.L().Warn("镜像通知发送失败", zap.String("chat_id", msg.ChatID), zap.Error(mirrorErr))
		}
	}

	return err
}
