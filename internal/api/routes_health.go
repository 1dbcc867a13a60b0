package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/runmate/internal/handlers"
	"github.com/charlesng35/runmate/internal/monitoring"
)

func registerHealthRoutes(r *gin.Engine, db *gorm.DB, manager *monitoring.HealthManager) {
	health := handlers.Health(db)
	ready := handlers.Readiness(manager)

	for _, router := range []gin.IRouter{r, r.Group("/api")} {
		router.GET("/health", health)
		router.GET("/health/ready", ready)
	}
}
