package controllers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewRouter wires every route onto a gin engine
func NewRouter(calculator *CalculatorController, positions *PositionController, logger *logrus.Logger) *gin.Engine {
	if !logger.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	r.GET("/health", calculator.HandleHealth)

	v1 := r.Group("/api/v1")
	{
		stocks := v1.Group("/stocks/:symbol")
		stocks.GET("/quote", calculator.HandleGetQuote)
		stocks.GET("/chain", calculator.HandleGetChain)

		v1.POST("/calculations", calculator.HandleCalculate)
		v1.GET("/calculations", calculator.HandleListCalculations)

		session := v1.Group("/session")
		session.GET("", positions.HandleGetSession)
		session.PUT("/active", positions.HandleSetActive)
		session.POST("/:type/stock", positions.HandleLoadStock)
		session.POST("/:type/expiration", positions.HandleSelectExpiration)
		session.PATCH("/:type", positions.HandleUpdate)
		session.POST("/:type/reset", positions.HandleReset)
		session.GET("/:type/result", positions.HandleResult)
	}

	return r
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start),
		})
		if c.Writer.Status() >= 500 {
			entry.Warn("Request failed")
			return
		}
		entry.Debug("Request handled")
	}
}
