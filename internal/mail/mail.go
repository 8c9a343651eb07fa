// Package mail 发送构建失败通知邮件。
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// ErrNoRecipients 表示消息没有任何收件人。
var ErrNoRecipients = errors.New("mail has no recipients")

// Message 是一封 HTML 通知邮件。
type Message struct {
	From    string
	To      []string
	Cc      []string
	Subject string
	HTML    string
}

// Sender 发送邮件。
type Sender interface {
	Send(ctx context.Context, message Message) error
}

// Recipients 返回 To 与 Cc 合并去重后的地址。
func (m Message) Recipients() []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(m.To)+len(m.Cc))
	for _, list := range [][]string{m.To, m.Cc} {
		for _, address := range list {
			address = strings.TrimSpace(address)
			if address == "" || seen[address] {
				continue
			}
			seen[address] = true
			result = append(result, address)
		}
	}
	return result
}

// Msg 把通知转换为 go-mail 消息：UTF-8 主题，base64 编码的 HTML 正文。
// 已出现在 To 中的地址不再写入 Cc，保证每个收件人只投递一次。
func (m Message) Msg(now time.Time) (*gomail.Msg, error) {
	msg := gomail.NewMsg(gomail.WithCharset(gomail.CharsetUTF8), gomail.WithEncoding(gomail.EncodingB64))
	if err := msg.From(m.From); err != nil {
		return nil, fmt.Errorf("mail from %q: %w", m.From, err)
	}

	to := (Message{To: m.To}).Recipients()
	if len(to) > 0 {
		if err := msg.To(to...); err != nil {
			return nil, fmt.Errorf("mail to: %w", err)
		}
	}
	if cc := m.Recipients()[len(to):]; len(cc) > 0 {
		if err := msg.Cc(cc...); err != nil {
			return nil, fmt.Errorf("mail cc: %w", err)
		}
	}

	msg.Subject(m.Subject)
	msg.SetDateWithValue(now)
	msg.SetBodyString(gomail.TypeTextHTML, m.HTML)
	return msg, nil
}

// Bytes 生成 RFC 5322 格式的完整邮件内容。
func (m Message) Bytes(now time.Time) ([]byte, error) {
	msg, err := m.Msg(now)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render mail: %w", err)
	}
	return buf.Bytes(), nil
}

// Log 只把邮件摘要写入日志，不真正发送。
type Log struct {
	Logger *zap.Logger
}

// Send 记录收件人与主题。
func (l *Log) Send(ctx context.Context, message Message) error {
	if len(message.Recipients()) == 0 {
		return ErrNoRecipients
	}
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("mail skipped (dry run)",
		zap.Strings("to", message.To),
		zap.Strings("cc", message.Cc),
		zap.String("subject", message.Subject),
		zap.Int("bytes", len(message.HTML)),
	)
	return nil
}

func validate(message Message) error {
	if len(message.Recipients()) == 0 {
		return ErrNoRecipients
	}
	if message.From == "" {
		return fmt.Errorf("mail sender address is empty")
	}
	return nil
}
