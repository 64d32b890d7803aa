package mockserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const authSubjectKey = "auth_subject"

// NewRouter wires the mock backend's routes: the account and absence
// API under /api, and the notification hub at the root, matching the
// production layout the client is configured for.
func NewRouter(logger *zap.Logger, h *Handler, hub *Hub, issuer *TokenIssuer) *gin.Engine {
	r := gin.New()
	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	api := r.Group("/api")
	account := api.Group("/account")
	account.POST("/login", h.Login)
	account.POST("/register", h.Register)
	account.GET("/profile", bearerAuthMiddleware(issuer), h.Profile)

	absences := api.Group("/absences", bearerAuthMiddleware(issuer))
	absences.GET("", h.ListAbsences)
	absences.GET("/:id", h.GetAbsence)
	absences.POST("", h.CreateAbsence)
	absences.PUT("/:id", h.UpdateAbsence)
	absences.POST("/:id/status", h.SetStatus)

	r.POST("/notification/negotiate", gin.WrapF(hub.Negotiate))
	r.GET("/notification", gin.WrapF(hub.Serve))

	return r
}

// bearerAuthMiddleware validates the Authorization header and stores
// the token subject in the request context.
func bearerAuthMiddleware(issuer *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}
		subject, err := issuer.Subject(strings.TrimSpace(header[len("Bearer "):]))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		c.Set(authSubjectKey, subject)
		c.Next()
	}
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
