package echoapi

import (
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/trezcool/vitrine/core"
	"github.com/trezcool/vitrine/core/block"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

type (
	AddBlockRequest struct {
		Type string `json:"type" validate:"required"`
	}

	// UpdateBlockRequest carries the new config of a block. Missing config fields take their defaults.
	UpdateBlockRequest struct {
		Config json.RawMessage `json:"config" validate:"required"`
	}

	// MoveBlockRequest moves a block one step (direction) or to a position (to).
	MoveBlockRequest struct {
		Direction string `json:"direction" validate:"required_without=To,omitempty,oneof=up down"`
		To        *int   `json:"to" validate:"required_without=Direction,omitempty,min=0"`
	}

	SaveRequest struct {
		ExpectedVersion int64 `json:"expected_version" validate:"min=0"`
	}

	FormRequest struct {
		Changes []block.FieldChange `json:"changes" validate:"required,min=1"`
	}

	MoveResponse struct {
		Moved  bool          `json:"moved"`
		Blocks []block.Block `json:"blocks"`
	}
)

func (r *AddBlockRequest) Validate(validate *validator.Validate) (block.Type, error) {
	r.Type = core.CleanString(r.Type, true /* lower */)
	if err := validate.Struct(r); err != nil {
		return "", err
	}
	return block.ParseType(r.Type)
}

func (r *MoveBlockRequest) Validate(validate *validator.Validate) error {
	r.Direction = core.CleanString(r.Direction, true /* lower */)
	return validate.Struct(r)
}
