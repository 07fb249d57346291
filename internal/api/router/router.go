package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/thumbnailer/internal/api/handlers/image"
	"github.com/aliskhannn/thumbnailer/internal/api/middleware"
)

func Setup(h *image.Handler) *ginext.Engine {
	r := ginext.New()

	r.Use(middleware.CORSMiddleware())
	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	api := r.Group("/api")

	api.POST("/upload", h.Upload)        // uploading an original
	api.GET("/status/*key", h.Status)    // processing status of an original
	api.GET("/thumb/*key", h.Thumbnail)  // thumbnail of an original
	api.DELETE("/object/*key", h.Delete) // deleting an original and its thumbnail

	return r
}
