package email

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing port",
			config: Config{
				Host: "smtp.example.com",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config, nil)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestRenderVerificationTemplate(t *testing.T) {
	data := VerificationData{
		AppName:         "PropIE",
		UserName:        "Test User",
		VerificationURL: "https://example.com/verify?token=abc123",
	}

	html, err := render(verificationTemplate, data)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	if !strings.Contains(html, "PropIE") {
		t.Error("template should contain app name")
	}
	if !strings.Contains(html, "Test User") {
		t.Error("template should contain user name")
	}
	if !strings.Contains(html, "https://example.com/verify?token=abc123") {
		t.Error("template should contain verification URL")
	}
}

func TestRenderPasswordResetTemplate(t *testing.T) {
	data := PasswordResetData{
		AppName:  "PropIE",
		UserName: "Test User",
		ResetURL: "https://example.com/reset?token=xyz789",
	}

	html, err := render(passwordResetTemplate, data)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	if !strings.Contains(html, "https://example.com/reset?token=xyz789") {
		t.Error("template should contain reset URL")
	}
	if !strings.Contains(html, "1 hour") {
		t.Error("template should mention expiration time")
	}
}

func TestUnconfiguredServiceSkipsSend(t *testing.T) {
	svc := NewService(Config{}, nil)
	called := false
	svc.send = func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	}

	err := svc.SendVerificationEmail("buyer@example.ie", "Buyer", "https://example.com/verify?token=t")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if called {
		t.Fatal("unconfigured service must not dial SMTP")
	}
}

func TestSaleStatusEmailMessage(t *testing.T) {
	svc := NewService(Config{Host: "smtp.example.com", Port: "587", From: "sales@propie.ie", FromName: "PropIE Sales"}, nil)

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	svc.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	err := svc.SendSaleStatusEmail("aoife@example.ie", SaleStatusData{
		UserName:    "Aoife",
		Development: "Fitzgerald Gardens",
		Unit:        "Unit 14",
		Status:      "CONTRACT_SIGNED",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Errorf("addr = %q", gotAddr)
	}
	if len(gotTo) != 1 || gotTo[0] != "aoife@example.ie" {
		t.Errorf("to = %v", gotTo)
	}
	for _, want := range []string{
		"Subject: Fitzgerald Gardens: Unit 14 update",
		"From: PropIE Sales <sales@propie.ie>",
		"multipart/alternative",
		"contract signed",
	} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}
