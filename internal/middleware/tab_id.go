package middleware

import (
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	TabIDHeader     = "X-Tab-ID"
	TabIDContextKey = "tab_id"
	tabIDQueryParam = "tab_id"
)

// Браузер сам выбирает идентификатор вкладки, поэтому ограничиваем его формат.
var tabIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// TabID извлекает идентификатор вкладки из заголовка X-Tab-ID (или параметра tab_id
// для websocket, где заголовки не задать). Без идентификатора выдается новый.
// Идентификатор всегда возвращается в заголовке ответа.
func TabID() gin.HandlerFunc {
	return func(c *gin.Context) {
		tabID := c.GetHeader(TabIDHeader)
		if tabID == "" {
			tabID = c.Query(tabIDQueryParam)
		}
		if !tabIDPattern.MatchString(tabID) {
			tabID = uuid.NewString()
		}
		c.Set(TabIDContextKey, tabID)
		c.Header(TabIDHeader, tabID)
		c.Next()
	}
}

// GetTabID возвращает идентификатор вкладки, установленный TabID.
func GetTabID(c *gin.Context) string {
	return c.GetString(TabIDContextKey)
}
