package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/kbukum/backplane"
	"github.com/kbukum/backplane/capability"
	"github.com/kbukum/backplane/migration"
	"github.com/kbukum/backplane/registry"
	"github.com/kbukum/backplane/version"
)

func registerRoutes(engine *gin.Engine, orch *backplane.Orchestrator) {
	v1 := engine.Group("/v1")
	v1.GET("/version", handleVersion)
	v1.GET("/status", handleStatusAll(orch))
	v1.GET("/capabilities/:capability/status", handleStatus(orch))
	v1.POST("/capabilities/:capability/migrations", handleRequestMigration(orch))
	v1.DELETE("/capabilities/:capability/migrations", handleCancelMigration(orch))
	v1.POST("/capabilities/:capability/active", handleForceActivate(orch))
	v1.PUT("/capabilities/:capability/providers/:provider/override", handleSetOverride(orch))
	v1.DELETE("/capabilities/:capability/providers/:provider/override", handleClearOverride(orch))
}

// pathCapability parses the :capability route parameter, replying 400
// itself when the name is unknown.
func pathCapability(c *gin.Context) (capability.Capability, bool) {
	cap, err := capability.Parse(c.Param("capability"))
	if err != nil {
		respondBadRequest(c, err.Error())
		return 0, false
	}
	return cap, true
}

func handleVersion(c *gin.Context) {
	respondOK(c, version.Get())
}

func handleStatusAll(orch *backplane.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		respondOK(c, orch.StatusAll())
	}
}

func handleStatus(orch *backplane.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		cap, ok := pathCapability(c)
		if !ok {
			return
		}
		status, err := orch.Status(cap)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, status)
	}
}

type migrationRequest struct {
	Target            string `json:"target" binding:"required"`
	Verify            bool   `json:"verify"`
	RollbackOnFailure bool   `json:"rollback_on_failure"`
}

func handleRequestMigration(orch *backplane.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		cap, ok := pathCapability(c)
		if !ok {
			return
		}
		var req migrationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "target is required")
			return
		}
		snap, err := orch.RequestMigration(cap, req.Target, migration.Options{
			Verify:            req.Verify,
			RollbackOnFailure: req.RollbackOnFailure,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		respondAccepted(c, snap)
	}
}

func handleCancelMigration(orch *backplane.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		cap, ok := pathCapability(c)
		if !ok {
			return
		}
		if err := orch.CancelMigration(cap); err != nil {
			respondError(c, err)
			return
		}
		respondNoContent(c)
	}
}

type activateRequest struct {
	Provider string `json:"provider" binding:"required"`
}

func handleForceActivate(orch *backplane.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		cap, ok := pathCapability(c)
		if !ok {
			return
		}
		var req activateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "provider is required")
			return
		}
		if err := orch.ForceActivate(cap, req.Provider); err != nil {
			respondError(c, err)
			return
		}
		respondNoContent(c)
	}
}

type overrideRequest struct {
	Status string `json:"status" binding:"required"`
}

func parseStatus(name string) (registry.Status, bool) {
	switch name {
	case "healthy":
		return registry.StatusHealthy, true
	case "degraded":
		return registry.StatusDegraded, true
	case "unhealthy":
		return registry.StatusUnhealthy, true
	case "unknown":
		return registry.StatusUnknown, true
	default:
		return 0, false
	}
}

func handleSetOverride(orch *backplane.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		cap, ok := pathCapability(c)
		if !ok {
			return
		}
		var req overrideRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, "status is required")
			return
		}
		status, ok := parseStatus(req.Status)
		if !ok {
			respondBadRequest(c, "status must be one of: unknown, healthy, degraded, unhealthy")
			return
		}
		if err := orch.SetHealthOverride(cap, c.Param("provider"), status); err != nil {
			respondError(c, err)
			return
		}
		respondNoContent(c)
	}
}

func handleClearOverride(orch *backplane.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		cap, ok := pathCapability(c)
		if !ok {
			return
		}
		if err := orch.ClearHealthOverride(cap, c.Param("provider")); err != nil {
			respondError(c, err)
			return
		}
		respondNoContent(c)
	}
}
