package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// The GET variants of /verify and /settle describe how to call the POST
// routes, mirroring the hosted x402 facilitators.

func (s *Server) handleVerifyDocs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"endpoint":    "/verify",
		"description": "POST to verify x402 payments",
		"body": gin.H{
			"paymentPayload":      "PaymentPayload",
			"paymentRequirements": "PaymentRequirements",
		},
	})
}

func (s *Server) handleSettleDocs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"endpoint":    "/settle",
		"description": "POST to settle x402 payments",
		"body": gin.H{
			"paymentPayload":      "PaymentPayload",
			"paymentRequirements": "PaymentRequirements",
		},
	})
}
