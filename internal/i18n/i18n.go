// Copyright (c) 2025 FieldOps
// fieldaudit - field audit and school activation service
// This source code is licensed under the MIT license found in the LICENSE file.

// package i18n provides localized API messages for fieldaudit.
// It uses the go-i18n library to load translation files embedded in the
// binary and picks a language per request from the Accept-Language header.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

var (
	mu        sync.RWMutex
	bundle    *i18n.Bundle
	matcher   language.Matcher
	localizer *i18n.Localizer
	lang      string
)

// Init loads every embedded locale and sets the default language.
func Init(defaultLang string) {
	b := i18n.NewBundle(language.English)
	b.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	files, _ := fs.ReadDir(localeFS, "locales")
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + f.Name())
		if err != nil {
			continue
		}
		if _, err := b.ParseMessageFileBytes(data, f.Name()); err != nil {
			panic(fmt.Sprintf("i18n: invalid locale file %s: %v", f.Name(), err))
		}
	}

	mu.Lock()
	defer mu.Unlock()
	bundle = b
	matcher = language.NewMatcher(b.LanguageTags())
	lang = defaultLang
	localizer = i18n.NewLocalizer(b, defaultLang)
}

func ensureInit() {
	mu.RLock()
	ok := bundle != nil
	mu.RUnlock()
	if !ok {
		Init("en")
	}
}

// GetLang returns the default language set by Init.
func GetLang() string {
	ensureInit()
	mu.RLock()
	defer mu.RUnlock()
	return lang
}

// GetAvailableLocales maps each loaded language tag to its English name.
func GetAvailableLocales() map[string]string {
	ensureInit()
	mu.RLock()
	defer mu.RUnlock()
	out := make(map[string]string)
	namer := display.English.Languages()
	for _, tag := range bundle.LanguageTags() {
		out[tag.String()] = namer.Name(tag)
	}
	return out
}

// Match returns the best supported language for an Accept-Language value.
func Match(acceptLanguage string) string {
	ensureInit()
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return GetLang()
	}
	mu.RLock()
	defer mu.RUnlock()
	tag, _, conf := matcher.Match(tags...)
	if conf == language.No {
		return lang
	}
	base, _ := tag.Base()
	return base.String()
}

// Translator localizes messages for one language preference list.
type Translator struct {
	loc *i18n.Localizer
}

// For builds a Translator. Later languages are fallbacks; the default
// language from Init is always the last resort.
func For(langs ...string) Translator {
	ensureInit()
	mu.RLock()
	defer mu.RUnlock()
	return Translator{loc: i18n.NewLocalizer(bundle, append(langs, lang)...)}
}

// T translates messageID. A single map argument is used as template data;
// any other arguments are applied fmt-style to the translated text.
// Unknown IDs are returned unchanged.
func (t Translator) T(messageID string, args ...any) string {
	return localize(t.loc, messageID, args...)
}

// T translates messageID in the default language.
func T(messageID string, args ...any) string {
	ensureInit()
	mu.RLock()
	loc := localizer
	mu.RUnlock()
	return localize(loc, messageID, args...)
}

func localize(loc *i18n.Localizer, messageID string, args ...any) string {
	cfg := &i18n.LocalizeConfig{MessageID: messageID}
	var fmtArgs []any
	if len(args) == 1 {
		if data, ok := args[0].(map[string]any); ok {
			cfg.TemplateData = data
		} else {
			fmtArgs = args
		}
	} else {
		fmtArgs = args
	}
	// A message missing from the requested language comes back in the
	// default language together with a MessageNotFoundErr.
	msg, _ := loc.Localize(cfg)
	if msg == "" {
		return messageID
	}
	if len(fmtArgs) > 0 && strings.Contains(msg, "%") {
		return fmt.Sprintf(msg, fmtArgs...)
	}
	return msg
}
