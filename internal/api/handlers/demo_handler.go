package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// DemoHandler serves a small product catalog so the pipeline has
// search and browse traffic to analyze.
type DemoHandler struct{}

func NewDemoHandler() *DemoHandler {
	return &DemoHandler{}
}

type product struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

var catalog = []product{
	{ID: 1, Name: "Mechanical Keyboard", Price: 129.99},
	{ID: 2, Name: "Vertical Mouse", Price: 59.99},
	{ID: 3, Name: "USB-C Dock", Price: 189.00},
	{ID: 4, Name: "4K Monitor", Price: 349.00},
	{ID: 5, Name: "Laptop Stand", Price: 39.50},
	{ID: 6, Name: "Noise Cancelling Headphones", Price: 279.00},
	{ID: 7, Name: "Webcam", Price: 89.99},
	{ID: 8, Name: "Desk Mat", Price: 24.99},
}

// Products lists the catalog.
func (h *DemoHandler) Products(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"products": catalog, "count": len(catalog)})
}

// Search filters the catalog by the q parameter.
func (h *DemoHandler) Search(c *gin.Context) {
	q := strings.ToLower(c.Query("q"))

	results := make([]product, 0)
	for _, p := range catalog {
		if q == "" || strings.Contains(strings.ToLower(p.Name), q) {
			results = append(results, p)
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results), "query": q})
}
