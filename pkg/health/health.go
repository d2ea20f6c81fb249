package health

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/libohan-ha/BaiHe-sub001/pkg/logger"
)

// Status represents the health status of a component
type Status string

const (
	// StatusUp indicates a component is working correctly
	StatusUp Status = "up"
	// StatusDown indicates a component is not working
	StatusDown Status = "down"
	// StatusDegraded indicates a component is working with reduced functionality
	StatusDegraded Status = "degraded"
)

// Component represents a system component that can be health-checked
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Check represents a health check function
type Check func() (Status, string, error)

// Checker manages health checks for the system
type Checker struct {
	checks     map[string]Check
	components map[string]*Component
	critical   map[string]bool
	period     time.Duration
	mutex      sync.RWMutex
	log        *logger.Logger
}

// NewChecker creates a new health checker
func NewChecker(log *logger.Logger, period time.Duration) *Checker {
	return &Checker{
		checks:     make(map[string]Check),
		components: make(map[string]*Component),
		critical:   make(map[string]bool),
		period:     period,
		log:        log,
	}
}

// RegisterCheck registers a health check. Critical checks take the
// whole endpoint to 503 when down.
func (c *Checker) RegisterCheck(name string, critical bool, check Check) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.checks[name] = check
	c.critical[name] = critical
	c.components[name] = &Component{
		Name:        name,
		Status:      StatusDown,
		Description: "Not checked yet",
	}
}

// RegisterDatabaseCheck registers the database connectivity check
func (c *Checker) RegisterDatabaseCheck(ping func() error) {
	c.RegisterCheck("database", true, func() (Status, string, error) {
		if err := ping(); err != nil {
			return StatusDown, "Database connection failed", err
		}
		return StatusUp, "Database connection is established", nil
	})
}

// RunChecks executes all registered health checks
func (c *Checker) RunChecks() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for name, check := range c.checks {
		status, description, err := check()

		component := c.components[name]
		component.Status = status
		component.Description = description
		component.LastChecked = time.Now()
		component.Error = ""

		if err != nil {
			component.Error = err.Error()
			c.log.Error("health check failed",
				"component", name,
				"status", string(status),
				"error", err.Error(),
			)
		}
	}
}

// Start begins periodic health checks
func (c *Checker) Start() {
	go func() {
		c.RunChecks()

		ticker := time.NewTicker(c.period)
		defer ticker.Stop()
		for range ticker.C {
			c.RunChecks()
		}
	}()
}

// Healthy reports whether every critical component is up
func (c *Checker) Healthy() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	for name, component := range c.components {
		if c.critical[name] && component.Status == StatusDown {
			return false
		}
	}
	return true
}

// Snapshot returns a copy of the current component statuses
func (c *Checker) Snapshot() map[string]Component {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	result := make(map[string]Component, len(c.components))
	for k, v := range c.components {
		result[k] = *v
	}
	return result
}

// Handler returns a gin handler exposing the health status
func (c *Checker) Handler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		status := http.StatusOK
		overall := "ok"
		if !c.Healthy() {
			status = http.StatusServiceUnavailable
			overall = "unavailable"
		}

		ctx.JSON(status, gin.H{
			"status":     overall,
			"timestamp":  time.Now(),
			"components": c.Snapshot(),
		})
	}
}
