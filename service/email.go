package service

import (
	"context"
	"fmt"
	"html"

	"spnd/config"

	"gopkg.in/gomail.v2"
)

// EmailService 邮件通知，实现 Notifier
type EmailService struct {
	cfg  config.EmailConfig
	send func(m *gomail.Message) error
}

// NewEmailService 创建邮件服务
func NewEmailService(cfg config.EmailConfig) *EmailService {
	s := &EmailService{cfg: cfg}
	s.send = s.dialAndSend
	return s
}

// Notify 按通知类型渲染并发送邮件
func (s *EmailService) Notify(ctx context.Context, to string, kind NotificationKind, data NotificationData) error {
	if !s.cfg.Enabled {
		return fmt.Errorf("邮件服务未启用，请配置 SPND_EMAIL_ENABLED=true")
	}
	subject, body, err := renderEmail(kind, data)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.cfg.Username, s.cfg.From))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)
	return s.send(m)
}

func (s *EmailService) dialAndSend(m *gomail.Message) error {
	d := gomail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	return nil
}

// renderEmail 生成邮件标题与正文
func renderEmail(kind NotificationKind, data NotificationData) (subject, body string, err error) {
	name := html.EscapeString(data.Username)
	switch kind {
	case NotifyExpenseRecorded:
		subject = "【Spnd】支出已记录"
		body = emailLayout("#2563eb", fmt.Sprintf(`
            <p>尊敬的 <strong>%s</strong>，您好！</p>
            <p>您的一笔支出已记录：</p>
            <table class="detail">
                <tr><td>金额</td><td>%s</td></tr>
                <tr><td>类别</td><td>%s</td></tr>
                <tr><td>描述</td><td>%s</td></tr>
                <tr><td>当前余额</td><td><strong>%s</strong></td></tr>
            </table>`,
			name, data.Amount.StringFixed(amountScale), html.EscapeString(data.Category),
			html.EscapeString(data.Description), data.Balance.StringFixed(amountScale)))
	case NotifyExpenseRejected:
		subject = "【Spnd】支出未记录：余额不足"
		body = emailLayout("#dc2626", fmt.Sprintf(`
            <p>尊敬的 <strong>%s</strong>，您好！</p>
            <p>您尝试记录的支出金额 <strong>%s</strong>（%s）超出了当前余额，未被记录。</p>
            <div class="warning">
                <p>⚠️ 当前余额：<strong>%s</strong>。请先记录收入后再试。</p>
            </div>`,
			name, data.Amount.StringFixed(amountScale), html.EscapeString(data.Category),
			data.Balance.StringFixed(amountScale)))
	case NotifySharedBudgetInvite:
		subject = "【Spnd】您已加入共享预算"
		body = emailLayout("#0ea5e9", fmt.Sprintf(`
            <p>尊敬的 <strong>%s</strong>，您好！</p>
            <p><strong>%s</strong> 将您加入了共享预算 <strong>「%s」</strong>。</p>
            <p>登录后即可从您的余额向该预算出资。</p>`,
			name, html.EscapeString(data.AddedBy), html.EscapeString(data.BudgetName)))
	default:
		return "", "", fmt.Errorf("未知的通知类型: %s", kind)
	}
	return subject, body, nil
}

func emailLayout(color, content string) string {
	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: 'Microsoft YaHei', Arial, sans-serif; background: #f5f5f5; margin: 0; padding: 20px; }
        .container { max-width: 600px; margin: 0 auto; background: #fff; border-radius: 12px; overflow: hidden; box-shadow: 0 4px 20px rgba(0,0,0,0.1); }
        .header { background: %s; color: white; padding: 30px; text-align: center; }
        .header h1 { margin: 0; font-size: 24px; }
        .content { padding: 40px 30px; }
        .content p { color: #333; line-height: 1.8; margin: 0 0 20px; }
        .detail td { padding: 6px 16px 6px 0; color: #333; }
        .warning { background: #fff3cd; border-left: 4px solid #ffc107; padding: 15px; margin: 20px 0; border-radius: 4px; }
        .warning p { margin: 0; color: #856404; font-size: 14px; }
        .footer { background: #f8f9fa; padding: 20px 30px; text-align: center; color: #6c757d; font-size: 12px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>💰 Spnd</h1>
        </div>
        <div class="content">%s
        </div>
        <div class="footer">
            <p>此邮件由系统自动发送，请勿回复</p>
        </div>
    </div>
</body>
</html>
`, color, content)
}
