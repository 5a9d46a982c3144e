package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/vitrine/core/page"
)

type pageApi struct {
	svc      *page.Service
	validate *validator.Validate
}

func registerPageAPI(g *echo.Group, svc *page.Service, validate *validator.Validate) {
	api := pageApi{svc: svc, validate: validate}

	pg := g.Group("/pages")
	pg.POST("", api.create)
	pg.GET("", api.query)
	pg.GET("/:id", api.retrieve)
	pg.GET("/:id/view", api.view)
	pg.POST("/:id/sessions", api.openSession)
}

// Handlers

func (api *pageApi) create(ctx echo.Context) error {
	var data page.NewPage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPage")
	}
	doc, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating page")
	}
	return ctx.JSON(http.StatusCreated, doc)
}

func (api *pageApi) query(ctx echo.Context) error {
	ordering := new(Ordering)
	ordering.Bind(ctx)

	sums, err := api.svc.Query(ctx.Request().Context(), ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying pages")
	}
	return ctx.JSON(http.StatusOK, sums)
}

func (api *pageApi) retrieve(ctx echo.Context) error {
	doc, err := api.svc.GetDocument(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting page")
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *pageApi) view(ctx echo.Context) error {
	v, err := api.svc.View(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "rendering page")
	}
	return ctx.JSON(http.StatusOK, v)
}

func (api *pageApi) openSession(ctx echo.Context) error {
	s, err := api.svc.Open(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "opening session")
	}
	return ctx.JSON(http.StatusCreated, s.Snapshot())
}
