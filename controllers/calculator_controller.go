package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"options-yield/interfaces"
	"options-yield/services"
)

// CalculatorController handles quote, chain and calculation requests
type CalculatorController struct {
	calculator *services.CalculatorService
	logger     *logrus.Logger
}

// NewCalculatorController creates a new calculator controller
func NewCalculatorController(calculator *services.CalculatorService, logger *logrus.Logger) *CalculatorController {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	return &CalculatorController{
		calculator: calculator,
		logger:     logger,
	}
}

// HandleHealth reports liveness
// GET /health
func (cc *CalculatorController) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"date":   cc.calculator.Engine().Today(),
	})
}

// HandleGetQuote returns the stock price for a symbol
// GET /api/v1/stocks/:symbol/quote?price=
func (cc *CalculatorController) HandleGetQuote(c *gin.Context) {
	price, err := optionalFloatQuery(c, "price")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid price",
			"details": err.Error(),
		})
		return
	}

	quote, err := cc.calculator.GetQuote(c.Request.Context(), c.Param("symbol"), price)
	if err != nil {
		cc.logger.WithError(err).WithField("symbol", c.Param("symbol")).Error("Failed to get quote")
		respondError(c, "Failed to get quote", err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

// HandleGetChain returns the strike ladder for a symbol
// GET /api/v1/stocks/:symbol/chain?price=&expiration=&type=
func (cc *CalculatorController) HandleGetChain(c *gin.Context) {
	price, err := optionalFloatQuery(c, "price")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid price",
			"details": err.Error(),
		})
		return
	}

	var expiration *civil.Date
	if raw := c.Query("expiration"); raw != "" {
		d, err := civil.ParseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid expiration date",
				"details": err.Error(),
			})
			return
		}
		expiration = &d
	}

	side := interfaces.OptionTypePut
	if raw := c.Query("type"); raw != "" {
		side = interfaces.OptionType(strings.ToUpper(raw))
	}

	ctx := c.Request.Context()
	quote, err := cc.calculator.GetQuote(ctx, c.Param("symbol"), price)
	if err != nil {
		respondError(c, "Failed to get quote", err)
		return
	}

	view, err := cc.calculator.GetChainView(ctx, quote.Symbol, quote.Price, expiration, side)
	if err != nil {
		cc.logger.WithError(err).WithField("symbol", quote.Symbol).Error("Failed to get option chain")
		respondError(c, "Failed to get option chain", err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// HandleCalculate computes the metrics for a position
// POST /api/v1/calculations
func (cc *CalculatorController) HandleCalculate(c *gin.Context) {
	var req interfaces.PositionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	record, err := cc.calculator.Calculate(c.Request.Context(), req)
	if err != nil {
		respondError(c, "Failed to calculate position", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"calculation": record,
		"formatted":   services.FormatResult(record.Result),
	})
}

// HandleListCalculations lists stored calculations
// GET /api/v1/calculations?symbol=AAPL&limit=20
func (cc *CalculatorController) HandleListCalculations(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	records, err := cc.calculator.History(c.Query("symbol"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list calculations",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":        len(records),
		"calculations": records,
	})
}

func optionalFloatQuery(c *gin.Context, key string) (*float64, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
