package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func RegisterDocs(r *gin.Engine) {
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, `# bitpredict

Guess whether BTC/USD will be higher or lower after the settlement delay.
A correct guess scores +1, an incorrect one -1. An unchanged value is incorrect.

## Auth

/api/v1/guess, /api/v1/status and /api/v1/history need a Bearer token whose
subject is the user id. /api/v1/price and the health endpoints are public.

## Routes

- POST /api/v1/guess      {"direction":"up"|"down"}
- GET  /api/v1/status     score and pending guess, if any
- GET  /api/v1/history    settled and expired guesses, newest first
- GET  /api/v1/price      current BTC/USD value
- GET  /healthz
- GET  /readyz
- GET  /metrics
- GET  /swagger/index.html

## Errors

- 400 direction is not up or down
- 401 missing or invalid token
- 409 a previous guess is still pending
- 503 the reference value could not be fetched; nothing was recorded
`)
	})
}
