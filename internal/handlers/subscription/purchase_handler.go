// internal/handlers/subscription/purchase_handler.go
package subscription

import (
	"context"
	"net/http"

	"loadboard-service/internal/domain/subscription"
	"loadboard-service/internal/middleware"
	"loadboard-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Purchaser is satisfied by the purchase service.
type Purchaser interface {
	Purchase(ctx context.Context, productID, receipt string) (*subscription.PurchaseResponse, error)
	Restore(ctx context.Context) (*subscription.PurchaseResponse, error)
}

type PurchaseHandler struct {
	purchases Purchaser
	logger    *zap.Logger
}

func NewPurchaseHandler(purchases Purchaser, logger *zap.Logger) *PurchaseHandler {
	return &PurchaseHandler{
		purchases: purchases,
		logger:    logger,
	}
}

// Purchase submits a store receipt for the signed-in user. A purchase that
// billing accepted but the profile has not reflected yet answers 202.
func (h *PurchaseHandler) Purchase(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	var req subscription.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.purchases.Purchase(c.Request.Context(), req.ProductID, req.ReceiptToken)
	if err != nil {
		h.logger.Warn("purchase failed",
			zap.String("user_id", userID),
			zap.String("product_id", req.ProductID),
			zap.Error(err),
		)
		response.FromError(c, "purchase failed", err)
		return
	}

	if result.Pending {
		response.Success(c, http.StatusAccepted, "purchase pending", result)
		return
	}
	response.Success(c, http.StatusOK, "purchase completed", result)
}

// Restore re-syncs the signed-in user's entitlement from billing.
func (h *PurchaseHandler) Restore(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	result, err := h.purchases.Restore(c.Request.Context())
	if err != nil {
		h.logger.Warn("restore failed", zap.String("user_id", userID), zap.Error(err))
		response.FromError(c, "restore failed", err)
		return
	}

	if result.Pending {
		response.Success(c, http.StatusAccepted, "restore pending", result)
		return
	}
	response.Success(c, http.StatusOK, "purchases restored", result)
}
