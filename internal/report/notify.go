package report

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"

	"go.uber.org/zap"

	"reactorlog/internal/mail"
	"reactorlog/internal/model"
)

// DefaultSubjectTemplate 是通知邮件主题模板，%s 为构建名称。
const DefaultSubjectTemplate = "<%s_BUILD 通知> 编译失败, 请尽快处理"

// Subject 用模板生成邮件主题；模板不含 %s 时原样使用。
func Subject(template string, name string) string {
	if template == "" {
		template = DefaultSubjectTemplate
	}
	if !strings.Contains(template, "%s") {
		return template
	}
	return fmt.Sprintf(template, strings.ToUpper(name))
}

// classEntry 是某个类别下一条记录的诊断文本。
type classEntry struct {
	key   string
	texts []string
}

// Notifications 按邮箱、再按诊断类别分组生成每个作者一封的通知。
//
// 约束说明：
// - 没有邮箱的记录不通知
// - 分组依据是每条诊断自身的类别，同一记录可以出现在多个类别下
// - 类别按名称排序，类别内按记录键排序
// - 正文各行以 "<br>\n" 连接，消息文本做 HTML 转义
func Notifications(subject string, records []*model.ErrorRecord) []mail.Message {
	grouped := make(map[string]map[model.DiagnosticClass][]classEntry)
	emails := make([]string, 0)
	for _, record := range records {
		if record == nil || record.Email == "" {
			continue
		}
		if grouped[record.Email] == nil {
			grouped[record.Email] = make(map[model.DiagnosticClass][]classEntry)
			emails = append(emails, record.Email)
		}
		for class, texts := range diagnosticsByClass(record) {
			grouped[record.Email][class] = append(grouped[record.Email][class], classEntry{key: record.Key(), texts: texts})
		}
	}
	sort.Strings(emails)

	messages := make([]mail.Message, 0, len(emails))
	for _, email := range emails {
		classes := make([]string, 0, len(grouped[email]))
		for class := range grouped[email] {
			classes = append(classes, string(class))
		}
		sort.Strings(classes)

		lines := make([]string, 0)
		for _, class := range classes {
			lines = append(lines, fmt.Sprintf(`<font color="red"><strong>%s</strong></font>:`, html.EscapeString(class)))

			items := grouped[email][model.DiagnosticClass(class)]
			sort.SliceStable(items, func(i int, j int) bool {
				return items[i].key < items[j].key
			})
			for _, item := range items {
				lines = append(lines, "  "+html.EscapeString(item.key))
				for _, text := range item.texts {
					lines = append(lines, "    "+html.EscapeString(text))
				}
			}
			lines = append(lines, "")
		}

		messages = append(messages, mail.Message{
			To:      []string{email},
			Subject: subject,
			HTML:    strings.Join(lines, "<br>\n"),
		})
	}
	return messages
}

// diagnosticsByClass 按诊断类别拆分记录的消息文本，保持诊断顺序。
// 诊断未标注类别时沿用记录的类别。
func diagnosticsByClass(record *model.ErrorRecord) map[model.DiagnosticClass][]string {
	result := make(map[model.DiagnosticClass][]string)
	for _, diagnostic := range record.Diagnostics {
		class := diagnostic.Class
		if class == "" {
			class = record.Class
		}
		result[class] = append(result[class], diagnostic.Text...)
	}
	if len(result) == 0 && len(record.Message) > 0 {
		result[record.Class] = append(result[record.Class], record.Message...)
	}
	return result
}

// Dispatch 逐封发送通知，发送失败只记录日志，返回成功封数。
func Dispatch(ctx context.Context, sender mail.Sender, from string, cc []string, messages []mail.Message, logger *zap.Logger) int {
	if logger == nil {
		logger = zap.NewNop()
	}

	sent := 0
	for _, message := range messages {
		message.From = from
		message.Cc = append([]string(nil), cc...)
		if err := sender.Send(ctx, message); err != nil {
			logger.Warn("send notification failed", zap.Strings("to", message.To), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}
