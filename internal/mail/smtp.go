package mail

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// SMTP 通过 SMTP 服务器发送邮件。
type SMTP struct {
	// Addr 为 host:port。
	Addr     string
	Username string
	Password string
	Timeout  time.Duration
	Logger   *zap.Logger
}

// Send 建立连接并投递一封邮件。服务器声明 STARTTLS 时先升级连接；
// 配置了用户名时使用 PLAIN 认证。
func (s *SMTP) Send(ctx context.Context, message Message) error {
	if err := validate(message); err != nil {
		return err
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := s.client()
	if err != nil {
		return err
	}
	msg, err := message.Msg(time.Now())
	if err != nil {
		return err
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail via %s: %w", s.Addr, err)
	}

	logger.Info("mail sent", zap.Strings("to", message.Recipients()), zap.String("subject", message.Subject))
	return nil
}

func (s *SMTP) client() (*gomail.Client, error) {
	host, portText, err := net.SplitHostPort(s.Addr)
	if err != nil {
		return nil, fmt.Errorf("smtp address %q: %w", s.Addr, err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		return nil, fmt.Errorf("smtp address %q: invalid port: %w", s.Addr, err)
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	options := []gomail.Option{
		gomail.WithPort(port),
		gomail.WithTimeout(timeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if s.Username != "" {
		options = append(options,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.Username),
			gomail.WithPassword(s.Password),
		)
	}

	client, err := gomail.NewClient(host, options...)
	if err != nil {
		return nil, fmt.Errorf("smtp client %s: %w", s.Addr, err)
	}
	return client, nil
}
