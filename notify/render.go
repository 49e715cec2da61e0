package notify

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	goCred "github.com/MrEthical07/goCred"
)

// Message is a rendered notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

type templateData struct {
	Code      string
	ExpiresAt string
	Minutes   int
}

var subjects = map[goCred.NotificationKind]string{
	goCred.NotifyConfirmEmail:  "Confirm your email",
	goCred.NotifyResetPassword: "Reset your password",
}

var bodies = template.Must(template.New("notify").Parse(`
{{- define "confirm_email" -}}
Your email confirmation code is {{.Code}}.
It expires in {{.Minutes}} minutes ({{.ExpiresAt}}).
{{- end -}}
{{- define "reset_password" -}}
Your password reset code is {{.Code}}.
It expires in {{.Minutes}} minutes ({{.ExpiresAt}}).
If you did not ask to reset your password, ignore this message.
{{- end -}}
`))

// Render builds the message for n relative to now.
func Render(n goCred.Notification, now time.Time) (Message, error) {
	subject, ok := subjects[n.Kind]
	if !ok {
		return Message{}, fmt.Errorf("notify: unknown kind %q", n.Kind)
	}

	minutes := int(n.ExpiresAt.Sub(now).Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	var buf bytes.Buffer
	err := bodies.ExecuteTemplate(&buf, string(n.Kind), templateData{
		Code:      n.Code,
		ExpiresAt: n.ExpiresAt.UTC().Format(time.RFC1123),
		Minutes:   minutes,
	})
	if err != nil {
		return Message{}, fmt.Errorf("notify: render %s: %w", n.Kind, err)
	}

	return Message{To: n.To, Subject: subject, Body: buf.String()}, nil
}
