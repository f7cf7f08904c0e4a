package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/didip/tollbooth/v6"
	"github.com/didip/tollbooth/v6/limiter"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"backpack-auth/internal/metrics"
	"backpack-auth/internal/service"
)

// Pinger reporta si una dependencia responde; lo usa /healthz.
type Pinger func(ctx context.Context) error

// RouterConfig agrupa lo que el router necesita fuera de los handlers.
type RouterConfig struct {
	AllowedOrigins []string
	Health         Pinger
	// RequestsPerSecond limita /auth por IP; 0 desactiva el limite.
	RequestsPerSecond float64
}

// NewRouter configura el router de Gin con middlewares y rutas de auth.
func NewRouter(
	logger *zap.Logger,
	cfg RouterConfig,
	jwtSvc *service.JWTService,
	authH *AuthHandler,
	twoFactorH *TwoFactorHandler,
	passwordH *PasswordHandler,
) *gin.Engine {
	r := gin.New()

	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), metricsMiddleware(), corsMiddleware(cfg.AllowedOrigins))

	r.GET("/healthz", healthHandler(cfg.Health))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := r.Group("/auth", jsonContentTypeMiddleware())
	if cfg.RequestsPerSecond > 0 {
		auth.Use(ipRateLimitMiddleware(cfg.RequestsPerSecond))
	}
	auth.POST("/register", authH.Register)
	auth.POST("/login", authH.Login)
	auth.POST("/forgot-password", passwordH.ForgotPassword)
	auth.POST("/validate-reset-token", passwordH.ValidateResetToken)
	auth.POST("/reset-password", passwordH.ResetPassword)

	// verify resuelve su propio token: temporal en el body o sesion.
	auth.POST("/2fa/verify", twoFactorH.Verify)

	twoFactor := auth.Group("/2fa", JWTAuthMiddleware(jwtSvc))
	twoFactor.POST("/setup", twoFactorH.Setup)
	twoFactor.GET("/status", twoFactorH.Status)
	twoFactor.POST("/disable", twoFactorH.Disable)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// metricsMiddleware usa la ruta registrada como label para no explotar la cardinalidad.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.ResponseTimeHistogram.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
		// la cookie de sesion solo viaja con origenes explicitos
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	corsConfig.MaxAge = 12 * time.Hour
	return cors.New(corsConfig)
}

// ipRateLimitMiddleware corta rafagas por IP antes de llegar a bcrypt o a la base.
func ipRateLimitMiddleware(rps float64) gin.HandlerFunc {
	lmt := tollbooth.NewLimiter(rps, &limiter.ExpirableOptions{DefaultExpirationTTL: time.Hour})
	lmt.SetIPLookups([]string{"RemoteAddr"})
	return func(c *gin.Context) {
		if httpErr := tollbooth.LimitByRequest(lmt, c.Writer, c.Request); httpErr != nil {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

func healthHandler(ping Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
