package middleware

import (
	"GreenCorridor/pkg/i18n"

	"github.com/gin-gonic/gin"
)

const LangKey = "lang"

// LanguageMiddleware resolves ?lang= first, then Accept-Language.
func LanguageMiddleware(i18nSupport *i18n.I18nSupport) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(LangKey, i18nSupport.Match(c.Query("lang"), c.GetHeader("Accept-Language")))
		c.Next()
	}
}

func Lang(c *gin.Context) string {
	return c.GetString(LangKey)
}
