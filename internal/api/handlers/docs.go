package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	// Import docs to register the generated swagger spec
	_ "github.com/riftworks/taskqueue/docs"
)

// DocsHandler serves the API documentation surface.
type DocsHandler struct{}

// NewDocsHandler creates a new docs handler
func NewDocsHandler() *DocsHandler {
	return &DocsHandler{}
}

// GetSwaggerJSON serves the raw OpenAPI spec as JSON
//
//	@Router	/swagger.json [get]
func (h *DocsHandler) GetSwaggerJSON(c *gin.Context) {
	c.File("./docs/swagger.json")
}

// GetSwaggerYAML serves the raw OpenAPI spec as YAML
//
//	@Router	/swagger.yaml [get]
func (h *DocsHandler) GetSwaggerYAML(c *gin.Context) {
	c.File("./docs/swagger.yaml")
}

// RedirectToSwaggerUI redirects /docs to the Swagger UI root
//
//	@Router	/docs [get]
func (h *DocsHandler) RedirectToSwaggerUI(c *gin.Context) {
	c.Redirect(http.StatusFound, "/docs/")
}

// GetSwaggerUI returns the Swagger UI handler
func (h *DocsHandler) GetSwaggerUI() gin.HandlerFunc {
	return ginSwagger.WrapHandler(swaggerFiles.Handler)
}

// apiIndexHTML is the landing page for /api: a terse map of the
// submission surface.
const apiIndexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>TaskQueue API</title>
    <style>
        body { font-family: ui-monospace, monospace; max-width: 56rem; margin: 2rem auto; padding: 0 1rem; color: #1a1a1a; }
        h1 { border-bottom: 2px solid #1a1a1a; padding-bottom: .5rem; }
        a { color: #0550ae; }
        table { border-collapse: collapse; width: 100%; }
        td, th { text-align: left; padding: .35rem .75rem; border-bottom: 1px solid #ddd; }
        .m { font-weight: 700; }
    </style>
</head>
<body>
    <h1>TaskQueue API</h1>
    <p>Background task queue: submit named units of work, follow their
    lifecycle, inspect queues. Interactive docs at <a href="/docs/">/docs/</a>,
    raw spec at <a href="/swagger.json">/swagger.json</a> and
    <a href="/swagger.yaml">/swagger.yaml</a>.</p>
    <table>
        <tr><th>Method</th><th>Path</th><th>Purpose</th></tr>
        <tr><td class="m">GET</td><td>/health</td><td>liveness</td></tr>
        <tr><td class="m">GET</td><td>/ready</td><td>dependency readiness</td></tr>
        <tr><td class="m">POST</td><td>/api/v1/auth/register</td><td>register producer</td></tr>
        <tr><td class="m">POST</td><td>/api/v1/auth/login</td><td>log producer in</td></tr>
        <tr><td class="m">POST</td><td>/api/v1/auth/refresh</td><td>refresh tokens</td></tr>
        <tr><td class="m">GET</td><td>/api/v1/auth/me</td><td>current producer</td></tr>
        <tr><td class="m">POST</td><td>/api/v1/tasks</td><td>submit a task</td></tr>
        <tr><td class="m">GET</td><td>/api/v1/tasks</td><td>list tasks (status filter, cursor)</td></tr>
        <tr><td class="m">GET</td><td>/api/v1/tasks/{id}</td><td>task record</td></tr>
        <tr><td class="m">GET</td><td>/api/v1/tasks/{id}/attempts</td><td>attempt history</td></tr>
        <tr><td class="m">GET</td><td>/api/v1/queues/{name}/stats</td><td>queue statistics</td></tr>
        <tr><td class="m">GET</td><td>/api/v1/queues/{name}/dead-letter</td><td>dead-lettered tasks</td></tr>
    </table>
</body>
</html>`

// GetAPIIndex serves the HTML landing page
//
//	@Router	/api [get]
func (h *DocsHandler) GetAPIIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(apiIndexHTML))
}
