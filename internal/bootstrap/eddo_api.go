package bootstrap

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	inhttp "eddo_server/adapter/in/http"
	"eddo_server/config"
	"eddo_server/pkg/logger"
)

// NewAPI builds the fiber app serving /mcp plus the health probes.
func NewAPI(cfg *config.Config, deps *Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: cfg.IsProduction(),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		StreamRequestBody:     true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigin,
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-User-ID,X-Database-Name,X-Telegram-ID,traceparent,tracestate,Mcp-Session-Id",
	}))

	inhttp.NewHealthHandler(deps.Store).Register(app)

	// The MCP streamable transport is a net/http handler; fiber mounts it
	// through the adaptor.
	app.All("/mcp", adaptor.HTTPHandler(deps.MCP.Handler()))

	logger.Info("API configured: /mcp, /health, /ready")
	return app
}
