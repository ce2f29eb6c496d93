package middlewares

import (
	"net/http"
	"strings"

	"github.com/fieldops/workorder_backend/models"
	"github.com/fieldops/workorder_backend/utils"
	"github.com/gin-gonic/gin"
)

const (
	HeaderActorId   = "X-Actor-Id"
	HeaderActorName = "X-Actor-Name"
)

// ActorMiddleware puts the acting operator into the request context.
// With JWT_SECRET set the actor comes only from a bearer token; otherwise
// the X-Actor-* headers are trusted as sent by the gateway.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if !utils.JwtEnabled() {
			name := strings.TrimSpace(c.GetHeader(HeaderActorName))
			if name != "" {
				ctx = utils.SetActorInContext(ctx, strings.TrimSpace(c.GetHeader(HeaderActorId)), name)
				c.Request = c.Request.WithContext(ctx)
			}
			c.Next()
			return
		}

		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.Next()
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		claim, err := utils.JwtValidate(token)
		if err != nil || strings.TrimSpace(claim.Name) == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx = utils.SetTokenInContext(ctx, token)
		ctx = utils.SetActorInContext(ctx, claim.Subject, claim.Name)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ActorFromRequest returns the actor set by ActorMiddleware; the zero Actor when none.
func ActorFromRequest(c *gin.Context) models.Actor {
	ctx := c.Request.Context()
	id, _ := utils.GetActorIdFromContext(ctx)
	name, _ := utils.GetActorNameFromContext(ctx)
	return models.Actor{Id: id, Name: name}
}
