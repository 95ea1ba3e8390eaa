package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultResendURL = "https://api.resend.com"

// ResendSender delivers through the Resend HTTP API.
type ResendSender struct {
	client *resty.Client
	from   string
}

func NewResendSender(baseURL, apiKey, from string) *ResendSender {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15*time.Second).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &ResendSender{client: client, from: from}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

type resendResponse struct {
	ID string `json:"id"`
}

type resendError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (s *ResendSender) Send(ctx context.Context, m Message) error {
	if len(m.To) == 0 {
		return fmt.Errorf("resend: no recipients")
	}
	var result resendResponse
	var apiErr resendError
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(resendRequest{From: s.from, To: m.To, Subject: m.Subject, HTML: m.HTML, ReplyTo: m.ReplyTo}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/emails")
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	if resp.IsError() {
		if apiErr.Message != "" {
			return fmt.Errorf("resend: %s: %s", resp.Status(), apiErr.Message)
		}
		return fmt.Errorf("resend: %s", resp.Status())
	}
	return nil
}
