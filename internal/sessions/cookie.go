package sessions

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderName carries the browser key for clients that cannot hold cookies.
const HeaderName = "X-Lead-Session"

// Cookie moves the browser key between the server and the browser.
type Cookie struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// BrowserKey returns the key the request carries, cookie first.
func (ck Cookie) BrowserKey(c *gin.Context) string {
	if v, err := c.Cookie(ck.Name); err == nil && v != "" {
		return v
	}
	return c.GetHeader(HeaderName)
}

// Set writes the browser key as an httpOnly, SameSite=Lax cookie.
func (ck Cookie) Set(c *gin.Context, browserKey string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(ck.Name, browserKey, int(ck.MaxAge.Seconds()), "/", "", ck.Secure, true)
}

// Clear expires the cookie.
func (ck Cookie) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(ck.Name, "", -1, "/", "", ck.Secure, true)
}
