package i18n

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/klyra-ai/klyra-backend/internal/config"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// Localizer manages internationalization of user-facing strings
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
}

// Message IDs
const (
	MsgGenericError      = "generic_error"
	MsgAPIRunning        = "api_running"
	MsgRateLimitExceeded = "rate_limit_exceeded"
)

// Built-in fallbacks used when no message file provides the ID
var defaults = map[string]string{
	MsgGenericError:      "Sorry, an error occurred. Please try again.",
	MsgAPIRunning:        "API is running",
	MsgRateLimitExceeded: "Too many requests. Please slow down.",
}

// NewLocalizer creates a new localizer. Missing message files are tolerated;
// the built-in English defaults always apply.
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	for _, lang := range cfg.Languages {
		path := fmt.Sprintf("%s/%s.json", cfg.Directory, lang)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if _, err := bundle.LoadMessageFile(path); err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", lang, err)
		}
	}

	localizers := make(map[string]*i18n.Localizer)
	for _, lang := range cfg.Languages {
		localizers[lang] = i18n.NewLocalizer(bundle, lang)
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: cfg.DefaultLanguage,
		localizers:      localizers,
	}, nil
}

// Get returns the localized message for the ID
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	localizer, exists := l.localizers[lang]
	if !exists {
		localizer = l.localizers[l.defaultLanguage]
	}

	if localizer != nil {
		msg, err := localizer.Localize(&i18n.LocalizeConfig{
			MessageID:    messageID,
			TemplateData: data,
		})
		if err == nil {
			return msg
		}
	}

	if msg, ok := defaults[messageID]; ok {
		return msg
	}
	return messageID
}
