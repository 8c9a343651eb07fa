package mail

import (
	"bufio"
	"context"
	"encoding/base64"
	"mime"
	"net"
	netmail "net/mail"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sampleMessage() Message {
	return Message{
		From:    "build@example.com",
		To:      []string{"zhang@example.com"},
		Cc:      []string{"li@example.com", "zhang@example.com"},
		Subject: "<UEP_BUILD 通知> 编译失败, 请尽快处理",
		HTML:    `<font color="red"><strong>compile</strong></font>:<br>` + strings.Repeat("x", 100),
	}
}

func TestRecipientsDeduplicates(t *testing.T) {
	assert.Equal(t, []string{"zhang@example.com", "li@example.com"}, sampleMessage().Recipients())
}

func addresses(t *testing.T, value string) []string {
	t.Helper()

	list, err := netmail.ParseAddressList(value)
	require.NoError(t, err)
	result := make([]string, 0, len(list))
	for _, address := range list {
		result = append(result, address.Address)
	}
	return result
}

func TestMessageBytes(t *testing.T) {
	message := sampleMessage()
	data, err := message.Bytes(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	raw := string(data)

	head, body, ok := strings.Cut(raw, "\r\n\r\n")
	require.True(t, ok)

	reader := textproto.NewReader(bufio.NewReader(strings.NewReader(head + "\r\n\r\n")))
	header, err := reader.ReadMIMEHeader()
	require.NoError(t, err)

	assert.Equal(t, []string{"build@example.com"}, addresses(t, header.Get("From")))
	assert.Equal(t, []string{"zhang@example.com"}, addresses(t, header.Get("To")))
	assert.Equal(t, []string{"li@example.com"}, addresses(t, header.Get("Cc")), "addresses already in To are not copied")
	assert.True(t, strings.HasPrefix(header.Get("Content-Type"), "text/html"))
	assert.Contains(t, header.Get("Content-Type"), "UTF-8")
	assert.Equal(t, "base64", header.Get("Content-Transfer-Encoding"))

	date, err := netmail.ParseDate(header.Get("Date"))
	require.NoError(t, err)
	assert.True(t, date.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))

	subject, err := new(mime.WordDecoder).DecodeHeader(header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, message.Subject, subject)

	for _, line := range strings.Split(strings.TrimRight(body, "\r\n"), "\r\n") {
		assert.LessOrEqual(t, len(line), 76)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(body, "\r\n", ""))
	require.NoError(t, err)
	assert.Equal(t, message.HTML, string(decoded))
}

func TestMessageRejectsBadAddress(t *testing.T) {
	_, err := Message{From: "not an address", To: []string{"zhang@example.com"}}.Bytes(time.Now())
	require.Error(t, err)
}

func TestLogSender(t *testing.T) {
	sender := &Log{Logger: zaptest.NewLogger(t)}
	require.NoError(t, sender.Send(context.Background(), sampleMessage()))
	assert.ErrorIs(t, sender.Send(context.Background(), Message{Subject: "x"}), ErrNoRecipients)
}

// fakeSMTPServer 实现最小 SMTP 会话，返回收到的信封与正文。
type received struct {
	from       string
	recipients []string
	data       string
}

func fakeSMTPServer(t *testing.T) (string, <-chan received) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	result := make(chan received, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		text := textproto.NewConn(conn)
		var got received
		_ = text.PrintfLine("220 fake ESMTP")
		for {
			line, err := text.ReadLine()
			if err != nil {
				return
			}
			verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
			switch verb {
			case "EHLO", "HELO":
				_ = text.PrintfLine("250 fake")
			case "MAIL":
				got.from = line
				_ = text.PrintfLine("250 ok")
			case "RCPT":
				got.recipients = append(got.recipients, line)
				_ = text.PrintfLine("250 ok")
			case "DATA":
				_ = text.PrintfLine("354 go ahead")
				data, err := text.ReadDotBytes()
				if err != nil {
					return
				}
				got.data = string(data)
				_ = text.PrintfLine("250 queued")
			case "QUIT":
				_ = text.PrintfLine("221 bye")
				result <- got
				return
			case "NOOP", "RSET":
				_ = text.PrintfLine("250 ok")
			default:
				_ = text.PrintfLine("502 unsupported")
			}
		}
	}()

	return listener.Addr().String(), result
}

func TestSMTPSend(t *testing.T) {
	addr, result := fakeSMTPServer(t)

	sender := &SMTP{Addr: addr, Timeout: 5 * time.Second, Logger: zaptest.NewLogger(t)}
	require.NoError(t, sender.Send(context.Background(), sampleMessage()))

	got := <-result
	assert.True(t, strings.HasPrefix(got.from, "MAIL FROM:<build@example.com>"), got.from)
	assert.Equal(t, []string{"RCPT TO:<zhang@example.com>", "RCPT TO:<li@example.com>"}, got.recipients)
	assert.Contains(t, got.data, "Content-Transfer-Encoding: base64")
	assert.Contains(t, got.data, "Cc: <li@example.com>")
}

func TestSMTPSendValidation(t *testing.T) {
	sender := &SMTP{Addr: "127.0.0.1:1"}
	assert.ErrorIs(t, sender.Send(context.Background(), Message{From: "a@b"}), ErrNoRecipients)
	assert.Error(t, sender.Send(context.Background(), Message{To: []string{"a@b"}}))
	assert.Error(t, (&SMTP{Addr: "no-port"}).Send(context.Background(), sampleMessage()))
	assert.Error(t, (&SMTP{Addr: "127.0.0.1:smtp"}).Send(context.Background(), sampleMessage()))
}
