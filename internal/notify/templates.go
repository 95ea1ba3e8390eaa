package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/sswtrack/sswtrack/internal/compliance"
)

//go:embed templates/*.html
var templateFS embed.FS

// jst is fixed; Japan does not observe daylight saving.
var jst = time.FixedZone("JST", 9*60*60)

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"urgencyLabel": urgencyLabel,
	"urgencyColor": urgencyColor,
}).ParseFS(templateFS, "templates/*.html"))

func urgencyLabel(s compliance.Severity) string {
	switch s {
	case compliance.SeverityCritical:
		return "緊急"
	case compliance.SeverityWarning:
		return "注意"
	}
	return "通常"
}

func urgencyColor(s compliance.Severity) string {
	switch s {
	case compliance.SeverityCritical:
		return "#dc2626"
	case compliance.SeverityWarning:
		return "#d97706"
	}
	return "#475569"
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}

// Invite is the data for an invitation email.
type Invite struct {
	To          string
	Name        string
	InviterName string
	RoleLabel   string
	AppURL      string
}

func InviteEmail(in Invite) (Message, error) {
	html, err := render("invite.html", in)
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      []string{in.To},
		Subject: fmt.Sprintf("【特定技能 受入れ管理】%sさんから招待が届いています", in.InviterName),
		HTML:    html,
	}, nil
}

// Feedback is the data for a feedback notification to the owner.
type Feedback struct {
	To      string
	Name    string
	Email   string
	Content string
	SentAt  time.Time
}

func FeedbackEmail(f Feedback) (Message, error) {
	name := f.Name
	if name == "" {
		name = "匿名"
	}
	html, err := render("feedback.html", struct {
		Name, Email, Content, SentAt string
	}{name, f.Email, f.Content, f.SentAt.In(jst).Format("2006/1/2 15:04:05")})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      []string{f.To},
		Subject: fmt.Sprintf("【フィードバック】%sさんからのご意見", name),
		HTML:    html,
		ReplyTo: f.Email,
	}, nil
}

// Digest is the data for a reminder digest.
type Digest struct {
	To        string
	Name      string
	Tasks     []compliance.Task
	Dashboard compliance.Dashboard
	AppURL    string
	At        time.Time
}

func DigestEmail(d Digest) (Message, error) {
	html, err := render("digest.html", struct {
		Digest
		Date string
	}{d, d.At.In(jst).Format("2006/1/2")})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      []string{d.To},
		Subject: fmt.Sprintf("【特定技能 受入れ管理】対応が必要なタスク %d件", len(d.Tasks)),
		HTML:    html,
	}, nil
}
