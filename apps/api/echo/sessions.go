package echoapi

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/vitrine/core"
	"github.com/trezcool/vitrine/core/block"
	"github.com/trezcool/vitrine/core/page"
)

const (
	contextSessionKey = "session"
	uploadFileField   = "file"
)

var errSessionNotInCtx = errors.New("session not found in echo.Context")

type sessionApi struct {
	svc           *page.Service
	validate      *validator.Validate
	maxUploadSize int64
}

func registerSessionAPI(g *echo.Group, svc *page.Service, validate *validator.Validate, maxUploadSize int64) {
	api := sessionApi{svc: svc, validate: validate, maxUploadSize: maxUploadSize}

	sg := g.Group("/sessions/:sid", api.sessionMiddleware)
	sg.GET("", api.retrieve)
	sg.DELETE("", api.discard)
	sg.POST("/save", api.save)
	sg.GET("/events", api.events)

	bg := sg.Group("/blocks")
	bg.POST("", api.addBlock)
	bg.PUT("/:bid", api.updateBlock)
	bg.DELETE("/:bid", api.removeBlock)
	bg.POST("/:bid/move", api.moveBlock)
	bg.GET("/:bid/form", api.form)
	bg.PATCH("/:bid/form", api.applyForm)
	bg.GET("/:bid/render", api.render)
	bg.POST("/:bid/uploads/:slot", api.upload)
}

// sessionMiddleware loads the live session of the path into the context.
func (api *sessionApi) sessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		s, err := api.svc.Session(ctx.Param("sid"))
		if err != nil {
			return err
		}
		ctx.Set(contextSessionKey, s)
		return next(ctx)
	}
}

func getContextSession(ctx echo.Context) (*page.Session, error) {
	s, ok := ctx.Get(contextSessionKey).(*page.Session)
	if !ok {
		return nil, errSessionNotInCtx
	}
	return s, nil
}

// Handlers

func (api *sessionApi) retrieve(ctx echo.Context) error {
	s, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s.Snapshot())
}

func (api *sessionApi) discard(ctx echo.Context) error {
	s, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Discard(s.ID); err != nil {
		return errors.Wrap(err, "discarding session")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *sessionApi) save(ctx echo.Context) error {
	s, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var data SaveRequest
	if ctx.Request().ContentLength != 0 {
		if err = ctx.Bind(&data); err != nil {
			return errors.Wrap(err, "binding to SaveRequest")
		}
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}
	doc, err := s.Save(ctx.Request().Context(), data.ExpectedVersion)
	if err != nil {
		return errors.Wrap(err, "saving page")
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *sessionApi) addBlock(ctx echo.Context) error {
	s, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var data AddBlockRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AddBlockRequest")
	}
	t, err := data.Validate(api.validate)
	if err != nil {
		return err
	}
	b, err := s.Add(t)
	if err != nil {
		return errors.Wrap(err, "adding block")
	}
	return ctx.JSON(http.StatusCreated, b)
}

func (api *sessionApi) updateBlock(ctx echo.Context) error {
	s, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var data UpdateBlockRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateBlockRequest")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	b, err := s.Get(ctx.Param("bid"))
	if err != nil {
		return err
	}
	cfg, err := block.DecodeConfig(b.Type, data.Config)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "config", Error: err.Error()})
	}
	if b, err = s.Update(b.ID, cfg); err != nil {
		return errors.Wrap(err, "updating block")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *sessionApi) removeBlock(ctx echo.Context) error {
	s, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	if err = s.Remove(ctx.Param("bid")); err != nil {
		return errors.Wrap(err, "removing block")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *sessionApi) moveBlock(ctx echo.Context) error {
	s, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var data MoveBlockRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MoveBlockRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	i, err := s.Index(ctx.Param("bid"))
	if err != nil {
		return err
	}
	var moved bool
	switch {
	case data.To != nil:
		moved, err = s.Move(i, *data.To)
	case data.Direction == "up":
		moved, err = s.MoveUp(i)
	default:
		moved, err = s.MoveDown(i)
	}
	if err != nil {
		return errors.Wrap(err, "moving block")
	}
	return ctx.JSON(http.StatusOK, MoveResponse{Moved: moved, Blocks: s.Snapshot().Blocks})
}

func (api *sessionApi) form(ctx echo.Context) error {
	s, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	form, err := s.Form(ctx.Param("bid"))
	if err != nil {
		return errors.Wrap(err, "getting form")
	}
	return ctx.JSON(http.StatusOK, form)
}

func (api *sessionApi) applyForm(ctx echo.Context) error {
	s, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	var data FormRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to FormRequest")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}
	form, err := s.ApplyForm(ctx.Param("bid"), data.Changes)
	if err != nil {
		return errors.Wrap(err, "applying form")
	}
	return ctx.JSON(http.StatusOK, form)
}

func (api *sessionApi) render(ctx echo.Context) error {
	s, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	d, err := s.Render(ctx.Param("bid"))
	if err != nil {
		return errors.Wrap(err, "rendering block")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *sessionApi) upload(ctx echo.Context) error {
	s, err := getContextSession(ctx)
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(ctx.Param("slot"))
	if err != nil || index < 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "slot", Error: "must be a non-negative integer"})
	}
	fh, err := ctx.FormFile(uploadFileField)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: uploadFileField, Error: "this field is required"})
	}
	if api.maxUploadSize > 0 && fh.Size > api.maxUploadSize {
		return core.NewValidationError(nil, core.FieldError{
			Field: uploadFileField,
			Error: "file is larger than " + strconv.FormatInt(api.maxUploadSize, 10) + " bytes",
		})
	}

	// the request body is gone once the handler returns: the upload works on a copy
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		return errors.Wrap(err, "reading uploaded file")
	}

	slot := page.Slot{BlockID: ctx.Param("bid"), Index: index}
	if err = s.Upload(slot, fh.Filename, data); err != nil {
		return errors.Wrap(err, "starting upload")
	}
	return ctx.JSON(http.StatusAccepted, page.SlotStatus{Slot: slot, Status: s.UploadStatus(slot)})
}
