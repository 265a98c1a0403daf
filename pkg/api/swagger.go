package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gopkg.in/yaml.v2"
)

// SwaggerInfo holds the swagger specification info
var SwaggerInfo = struct {
	Version     string
	BasePath    string
	Title       string
	Description string
}{
	Version:     "1.0.0",
	BasePath:    "/api/v1",
	Title:       "Escrow Market API",
	Description: "Escrow and settlement API for a digital-asset marketplace",
}

// SpecPath is where the OpenAPI document is read from.
var SpecPath = filepath.Join("docs", "swagger.yaml")

// setupSwagger configures Swagger documentation routes
func setupSwagger(r *gin.Engine) {
	r.GET("/api/v1/openapi.yaml", func(c *gin.Context) {
		yamlData, err := os.ReadFile(SpecPath)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to read OpenAPI specification",
			})
			return
		}
		c.Data(http.StatusOK, "application/yaml", yamlData)
	})

	r.GET("/api/v1/openapi.json", func(c *gin.Context) {
		yamlData, err := os.ReadFile(SpecPath)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to read OpenAPI specification",
			})
			return
		}

		spec, err := yamlToJSON(yamlData)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to parse OpenAPI specification",
			})
			return
		}
		c.JSON(http.StatusOK, spec)
	})

	// Serve Swagger UI
	r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/api/v1/openapi.json")))

	r.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/docs/")
	})

	r.GET("/api/v1/docs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data": gin.H{
				"title":       SwaggerInfo.Title,
				"description": SwaggerInfo.Description,
				"version":     SwaggerInfo.Version,
				"base_path":   SwaggerInfo.BasePath,
				"docs_url":    "/docs/",
				"openapi_url": "/api/v1/openapi.json",
			},
		})
	})
}

// yamlToJSON decodes a YAML document into values encoding/json can render.
// yaml.v2 produces map[interface{}]interface{} for mappings.
func yamlToJSON(data []byte) (interface{}, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return convertYAML(doc), nil
}

func convertYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = convertYAML(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = convertYAML(val)
		}
		return out
	default:
		return v
	}
}
