package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	initdata "github.com/telegram-mini-apps/init-data-golang"
)

var (
	ErrInitDataInvalid = errors.New("telegram init data is invalid")
	ErrInitDataExpired = errors.New("telegram init data is expired")
)

type TelegramUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// DisplayName prefers the first and last name, then the username.
func (u TelegramUser) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		name = u.Username
	}
	return name
}

// InitData is the verified payload a Telegram WebApp passes to the backend.
type InitData struct {
	User       TelegramUser
	AuthDate   time.Time
	StartParam string
	QueryID    string
}

// ValidateInitData checks the initData signature and freshness and decodes the user.
// Freshness is judged against now; a zero maxAge disables it.
func ValidateInitData(raw, botToken string, maxAge time.Duration, now time.Time) (*InitData, error) {
	if err := initdata.Validate(raw, botToken, 0); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitDataInvalid, err)
	}
	parsed, err := initdata.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitDataInvalid, err)
	}

	authDate := parsed.AuthDate().UTC()
	if maxAge > 0 && now.Sub(authDate) > maxAge {
		return nil, ErrInitDataExpired
	}
	if parsed.User.ID == 0 {
		return nil, fmt.Errorf("%w: missing user id", ErrInitDataInvalid)
	}

	return &InitData{
		User: TelegramUser{
			ID:           parsed.User.ID,
			FirstName:    parsed.User.FirstName,
			LastName:     parsed.User.LastName,
			Username:     parsed.User.Username,
			LanguageCode: parsed.User.LanguageCode,
		},
		AuthDate:   authDate,
		StartParam: parsed.StartParam,
		QueryID:    parsed.QueryID,
	}, nil
}
