package controllers

import (
	"errors"
	"net/http"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin"

	"options-yield/interfaces"
	"options-yield/services"
)

// PositionController handles the per-type calculator forms
type PositionController struct {
	calculator *services.CalculatorService
}

// NewPositionController creates a new position controller
func NewPositionController(calculator *services.CalculatorService) *PositionController {
	return &PositionController{
		calculator: calculator,
	}
}

// SetActiveRequest switches the form shown
type SetActiveRequest struct {
	Type interfaces.OptionType `json:"type" binding:"required"`
}

// LoadStockRequest loads a symbol into a form
type LoadStockRequest struct {
	Symbol string   `json:"symbol" binding:"required"`
	Price  *float64 `json:"price,omitempty"`
}

// SelectExpirationRequest picks an expiration for a form
type SelectExpirationRequest struct {
	ExpirationDate civil.Date `json:"expiration_date"`
}

// HandleGetSession returns both forms
// GET /api/v1/session
func (pc *PositionController) HandleGetSession(c *gin.Context) {
	c.JSON(http.StatusOK, pc.calculator.Session())
}

// HandleSetActive switches the active option type
// PUT /api/v1/session/active
func (pc *PositionController) HandleSetActive(c *gin.Context) {
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if err := pc.calculator.SetActive(interfaces.OptionType(strings.ToUpper(string(req.Type)))); err != nil {
		respondError(c, "Failed to switch option type", err)
		return
	}

	c.JSON(http.StatusOK, pc.calculator.Session())
}

// HandleLoadStock quotes a symbol into a form and loads its chain
// POST /api/v1/session/:type/stock
func (pc *PositionController) HandleLoadStock(c *gin.Context) {
	var req LoadStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	state, err := pc.calculator.LoadStock(c.Request.Context(), optionTypeParam(c), req.Symbol, req.Price)
	if err != nil {
		respondStateError(c, "Failed to load stock", state, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// HandleSelectExpiration picks an expiration and reloads that part of the chain
// POST /api/v1/session/:type/expiration
func (pc *PositionController) HandleSelectExpiration(c *gin.Context) {
	var req SelectExpirationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}
	if req.ExpirationDate == (civil.Date{}) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "expiration_date required",
		})
		return
	}

	state, err := pc.calculator.SelectExpiration(c.Request.Context(), optionTypeParam(c), req.ExpirationDate)
	if err != nil {
		respondStateError(c, "Failed to select expiration", state, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// HandleUpdate edits strike, premium, contracts or ownership fields
// PATCH /api/v1/session/:type
func (pc *PositionController) HandleUpdate(c *gin.Context) {
	var req services.SessionUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	state, err := pc.calculator.UpdateSession(optionTypeParam(c), req)
	if err != nil {
		respondError(c, "Failed to update form", err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// HandleReset clears a form
// POST /api/v1/session/:type/reset
func (pc *PositionController) HandleReset(c *gin.Context) {
	if err := pc.calculator.ResetSession(optionTypeParam(c)); err != nil {
		respondError(c, "Failed to reset form", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Form reset successfully",
	})
}

// HandleResult computes the metrics for a form
// GET /api/v1/session/:type/result
func (pc *PositionController) HandleResult(c *gin.Context) {
	result, complete, err := pc.calculator.SessionResult(optionTypeParam(c))
	if err != nil {
		respondError(c, "Failed to calculate position", err)
		return
	}
	if !complete {
		c.JSON(http.StatusOK, gin.H{
			"complete": false,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"complete":  true,
		"result":    result,
		"formatted": services.FormatResult(*result),
	})
}

func optionTypeParam(c *gin.Context) interfaces.OptionType {
	return interfaces.OptionType(strings.ToUpper(c.Param("type")))
}

// respondStateError reports an error while still returning the form when
// the service updated it
func respondStateError(c *gin.Context, message string, state *services.CalculatorState, err error) {
	if state == nil || !errors.Is(err, services.ErrEmptyChain) {
		respondError(c, message, err)
		return
	}
	c.JSON(statusForError(err), gin.H{
		"error":   message,
		"details": err.Error(),
		"state":   state,
	})
}
