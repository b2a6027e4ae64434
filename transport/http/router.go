package http

import (
	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flarexio/docrag"

	mcpE "github.com/flarexio/docrag/mcp"
)

func AddRouters(r *gin.Engine, endpoints docrag.EndpointSet) {
	api := r.Group("/api")
	{
		api.GET("/files", ListFilesHandler(endpoints.ListFiles))
		api.POST("/files", UploadFileHandler(endpoints.SaveFile))
		api.POST("/ingest", IngestHandler(endpoints.Ingest))
		api.GET("/search", SearchHandler(endpoints.Search))
		api.GET("/query", QueryHandler(endpoints.Answer))
		api.POST("/chat", ChatHandler(endpoints.Answer))
		api.DELETE("/documents", ResetHandler(endpoints.Reset))
		api.GET("/collection", CollectionInfoHandler(endpoints.CollectionInfo))
	}
}

func AddMetricsRouter(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func AddStreamableRouters(r *gin.Engine, endpoints map[mcp.MCPMethod]mcpE.MCPEndpoint) {
	mcp := r.Group("/mcp")
	{
		mcp.POST("/", MCPStreamableHandler(endpoints))
	}
}
