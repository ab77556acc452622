package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/example/newport/internal/metrics"
)

const telegramAPIURL = "https://api.telegram.org"

// TelegramService sends payment notifications to the administration chat.
type TelegramService struct {
	botToken    string
	adminChatID string
	client      *resty.Client
	breaker     *gobreaker.CircuitBreaker

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return newTelegramService(telegramAPIURL, botToken, adminChatID)
}

func newTelegramService(apiURL, botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		client: resty.New().
			SetBaseURL(strings.TrimRight(apiURL, "/")).
			SetTimeout(5 * time.Second).
			SetRetryCount(0),
		breaker: newBreaker("telegram"),
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(cbName string, from gobreaker.State, to gobreaker.State) {
			state := float64(0)
			switch to {
			case gobreaker.StateOpen:
				state = 1
			case gobreaker.StateHalfOpen:
				state = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(cbName).Set(state)

			log.WithFields(log.Fields{
				"circuit": cbName,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s.botToken == "" {
		log.Debug("[Telegram] Bot token not configured")
		return nil
	}

	_, err := s.breaker.Execute(func() (interface{}, error) {
		resp, err := s.client.R().
			SetContext(ctx).
			SetBody(telegramMessage{ChatID: chatID, Text: text, ParseMode: "HTML"}).
			Post(fmt.Sprintf("/bot%s/sendMessage", s.botToken))
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("telegram returned status %d", resp.StatusCode())
		}
		return nil, nil
	})
	if err != nil {
		log.WithError(err).Warn("[Telegram] Failed to send message")
		return err
	}
	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(ctx context.Context, text string) error {
	if s.adminChatID == "" {
		log.Debug("[Telegram] Admin chat ID not configured")
		return nil
	}
	return s.SendMessage(ctx, s.adminChatID, text)
}

// FormatPrice formats price with currency and thousand separators.
func FormatPrice(amount float64, currency string) string {
	if currency == "" {
		currency = "UZS"
	}
	intAmount := int64(amount)
	sign := ""
	if intAmount < 0 {
		sign = "-"
		intAmount = -intAmount
	}
	str := fmt.Sprintf("%d", intAmount)

	var result strings.Builder
	length := len(str)
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}

	return sign + result.String() + " " + currency
}

// PaymentSuccessMessage renders the admin chat message for a completed payment.
func PaymentSuccessMessage(event PaymentEvent) string {
	message := fmt.Sprintf(`<b>✅ TO'LOV QABUL QILINDI!</b>
<b>📋 To'lov:</b> %s
<b>🏠 Xonadon:</b> %s
<b>🧾 Payme:</b> %s
<b>💰 Summa:</b> %s
━━━━━━━━━━━━━━━━━━
<i>Newport</i>`,
		event.PaymentID,
		event.ApartmentID,
		event.TransactionID,
		FormatPrice(float64(event.Amount), "сум"),
	)
	return strings.TrimSpace(message)
}

// Publish notifies the admin chat about completed payments. Delivery happens
// in the background and never blocks the gateway callback.
func (s *TelegramService) Publish(_ context.Context, event PaymentEvent) error {
	if event.Type != EventPaymentCompleted || s.adminChatID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		log.WithField("payment_id", event.PaymentID).Warn("[Telegram] Service closed, payment notification dropped")
		return nil
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.SendToAdmin(ctx, PaymentSuccessMessage(event)); err != nil {
			log.WithField("payment_id", event.PaymentID).WithError(err).Warn("[Telegram] Payment notification failed")
		}
	}()
	return nil
}

// Close stops accepting notifications and waits for the ones already sending.
func (s *TelegramService) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.inflight.Wait()
	return nil
}
