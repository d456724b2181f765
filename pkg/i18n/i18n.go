package i18n

import (
	"encoding/json"
	"os"
	"path/filepath"

	"GreenCorridor/pkg/logger"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

const (
	MsgRouteAccepted     = "response.accepted"
	MsgRouteRejected     = "response.rejected"
	MsgAlertAcknowledged = "response.acknowledged"
	MsgAmbulanceNearby   = "push.ambulance_nearby"
)

// builtin messages; files under the locales dir override them.
var builtin = map[language.Tag][]*i18n.Message{
	language.English: {
		{ID: MsgRouteAccepted, Other: "Route is clear. Proceed."},
		{ID: MsgRouteRejected, Other: "Route is busy. Please take another way."},
		{ID: MsgAlertAcknowledged, Other: "Alert acknowledged by traffic police."},
		{ID: MsgAmbulanceNearby, Other: "Ambulance {{.Driver}} is {{.Distance}} m away"},
	},
	language.Chinese: {
		{ID: MsgRouteAccepted, Other: "道路畅通，请通行。"},
		{ID: MsgRouteRejected, Other: "道路拥堵，请改走其他路线。"},
		{ID: MsgAlertAcknowledged, Other: "交警已确认警报。"},
		{ID: MsgAmbulanceNearby, Other: "救护车 {{.Driver}} 距离 {{.Distance}} 米"},
	},
	language.Hindi: {
		{ID: MsgRouteAccepted, Other: "रास्ता साफ़ है। आगे बढ़ें।"},
		{ID: MsgRouteRejected, Other: "रास्ता व्यस्त है। कृपया दूसरा रास्ता लें।"},
		{ID: MsgAlertAcknowledged, Other: "ट्रैफिक पुलिस ने अलर्ट स्वीकार किया।"},
		{ID: MsgAmbulanceNearby, Other: "एम्बुलेंस {{.Driver}} {{.Distance}} मीटर दूर है"},
	},
}

// I18nSupport 国际化支持
type I18nSupport struct {
	bundle  *i18n.Bundle
	matcher language.Matcher
	def     language.Tag
}

// NewI18nSupport builds the bundle from builtin messages plus any *.json in localesDir.
func NewI18nSupport(defaultLang, localesDir string) (*I18nSupport, error) {
	def, err := language.Parse(defaultLang)
	if err != nil {
		return nil, err
	}
	bundle := i18n.NewBundle(def)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	tags := []language.Tag{def}
	for tag, msgs := range builtin {
		if err := bundle.AddMessages(tag, msgs...); err != nil {
			return nil, err
		}
		if tag != def {
			tags = append(tags, tag)
		}
	}
	if localesDir != "" {
		files, _ := filepath.Glob(filepath.Join(localesDir, "*.json"))
		for _, f := range files {
			if _, err := bundle.LoadMessageFile(f); err != nil {
				logger.Warn("skip locale file", zap.String("file", f), zap.Error(err))
			}
		}
		if len(files) == 0 {
			if _, err := os.Stat(localesDir); err != nil {
				logger.Debug("locales dir not found", zap.String("dir", localesDir))
			}
		}
	}
	return &I18nSupport{bundle: bundle, matcher: language.NewMatcher(tags), def: def}, nil
}

// Match picks the best supported language for an Accept-Language value or tag list.
func (i *I18nSupport) Match(prefs ...string) string {
	var want []language.Tag
	for _, p := range prefs {
		if p == "" {
			continue
		}
		tags, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		want = append(want, tags...)
	}
	if len(want) == 0 {
		return i.def.String()
	}
	tag, _, _ := i.matcher.Match(want...)
	base, _ := tag.Base()
	return base.String()
}

// T 获取翻译文本, falling back to the key.
func (i *I18nSupport) T(languageTag, key string, templateData map[string]interface{}) string {
	localizer := i18n.NewLocalizer(i.bundle, languageTag, i.def.String())
	translation, err := localizer.Localize(&i18n.LocalizeConfig{MessageID: key, TemplateData: templateData})
	if err != nil {
		logger.Warn("translation missing", zap.String("key", key), zap.String("lang", languageTag))
		return key
	}
	return translation
}

func (i *I18nSupport) TWithDefaultLang(key string, templateData map[string]interface{}) string {
	return i.T(i.def.String(), key, templateData)
}
