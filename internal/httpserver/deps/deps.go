package deps

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/linkpocket/internal/logger"
	"github.com/MrSnakeDoc/linkpocket/internal/session"
)

type Deps struct {
	Logger          logger.Logger
	StartTime       time.Time
	Version         string
	Commit          string
	BuildDate       string
	GoVersion       string
	TimeNow         func() time.Time // for testing, defaults to time.Now
	AllowedCIDRS    []string         // IPs allowed to reach the probes and the API
	TrustProxy      bool             // true if running behind a trusted reverse proxy
	CreateRateLimit int              // link creations per minute per client IP (0 = unlimited)
	LocalStore      string           // guest store kind, reported by /api/infra
	Session         *session.Session // the single user context behind the API
	RedisClient     *redis.Client    // nil when sign-in is disabled
}
