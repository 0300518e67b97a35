package importer

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler accepts CDA uploads over HTTP and feeds them through the same
// pipeline the CLI uses. Files within one request import sequentially.
type Handler struct {
	importer *Importer
}

func NewHandler(imp *Importer) *Handler {
	return &Handler{importer: imp}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/import", h.upload)
}

type uploadResult struct {
	File     string `json:"file"`
	Inserted int    `json:"inserted"`
	Error    string `json:"error,omitempty"`
}

func (h *Handler) upload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form required")
	}
	files := form.File["files"]
	if len(files) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no files uploaded")
	}

	ctx := c.Request().Context()
	results := make([]uploadResult, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			results = append(results, uploadResult{File: fh.Filename, Error: err.Error()})
			continue
		}
		n, err := h.importer.Import(ctx, fh.Filename, f)
		f.Close()

		res := uploadResult{File: fh.Filename, Inserted: n}
		if err != nil {
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return c.JSON(http.StatusOK, map[string]any{"results": results})
}
