package webhook

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v7/linebot"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leecheenbao/tripeak-b2b/internal/logger"
)

// RequestParser validates a webhook request's signature and decodes its
// event batch.
type RequestParser interface {
	ParseRequest(r *http.Request) ([]*linebot.Event, error)
}

// NewRouter builds the HTTP surface: the webhook endpoint plus health and
// metrics.
func NewRouter(parser RequestParser, handler *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	log := logger.Component("http")

	r.POST("/webhook", func(c *gin.Context) {
		events, err := parser.ParseRequest(c.Request)
		if err != nil {
			if errors.Is(err, linebot.ErrInvalidSignature) {
				log.Warn().Msg("webhook request with invalid signature")
				c.Status(http.StatusBadRequest)
				return
			}
			log.Error().Err(err).Msg("webhook request unreadable")
			c.Status(http.StatusInternalServerError)
			return
		}

		handler.HandleEvents(c.Request.Context(), events)
		c.Status(http.StatusOK)
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
