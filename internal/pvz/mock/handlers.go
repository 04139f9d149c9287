package mock

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 30
)

type dummyLoginRequest struct {
	Role string `json:"role" validate:"required,oneof=employee moderator"`
}

type tokenResponse struct {
	JWT string `json:"jwt"`
}

type createPVZRequest struct {
	City string `json:"city" validate:"required,pvz_city"`
}

type openReceptionRequest struct {
	PVZID string `json:"pvzId" validate:"required,uuid"`
}

type addProductRequest struct {
	PVZID string `json:"pvzId" validate:"required,uuid"`
	Type  string `json:"type" validate:"required,product_type"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("pvz_city", oneOfList(Cities))
	_ = v.RegisterValidation("product_type", oneOfList(ProductTypes))
	return v
}

func oneOfList(allowed []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		for _, a := range allowed {
			if a == value {
				return true
			}
		}
		return false
	}
}

// bind decodes the JSON body into dst and validates it. It writes a 400
// and returns false on failure.
func (s *Server) bind(ctx *gin.Context, dst interface{}) bool {
	if err := ctx.ShouldBindJSON(dst); err != nil {
		abort(ctx, http.StatusBadRequest, "badly formed request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		abort(ctx, http.StatusBadRequest, "invalid data in request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) dummyLogin(ctx *gin.Context) {
	var req dummyLoginRequest
	if !s.bind(ctx, &req) {
		return
	}
	token, err := s.tokens.issue(req.Role)
	if err != nil {
		abort(ctx, http.StatusInternalServerError, "internal error")
		return
	}
	ctx.JSON(http.StatusOK, tokenResponse{JWT: token})
}

func (s *Server) createPVZ(ctx *gin.Context) {
	var req createPVZRequest
	if !s.bind(ctx, &req) {
		return
	}
	ctx.JSON(http.StatusCreated, s.store.createPVZ(req.City))
}

func (s *Server) openReception(ctx *gin.Context) {
	var req openReceptionRequest
	if !s.bind(ctx, &req) {
		return
	}
	rec, err := s.store.openReception(uuid.MustParse(req.PVZID))
	if err != nil {
		storeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, rec)
}

func (s *Server) addProduct(ctx *gin.Context) {
	var req addProductRequest
	if !s.bind(ctx, &req) {
		return
	}
	prod, err := s.store.addProduct(uuid.MustParse(req.PVZID), req.Type)
	if err != nil {
		storeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, prod)
}

func (s *Server) closeReception(ctx *gin.Context) {
	pvzID, err := uuid.Parse(ctx.Param("pvzId"))
	if err != nil {
		abort(ctx, http.StatusBadRequest, "invalid pvzId")
		return
	}
	rec, err := s.store.closeReception(pvzID)
	if err != nil {
		storeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, rec)
}

func (s *Server) deleteLastProduct(ctx *gin.Context) {
	pvzID, err := uuid.Parse(ctx.Param("pvzId"))
	if err != nil {
		abort(ctx, http.StatusBadRequest, "invalid pvzId")
		return
	}
	if err := s.store.deleteLastProduct(pvzID); err != nil {
		storeError(ctx, err)
		return
	}
	ctx.Status(http.StatusOK)
}

func (s *Server) listPVZ(ctx *gin.Context) {
	params, err := parseListParams(ctx)
	if err != nil {
		abort(ctx, http.StatusBadRequest, err.Error())
		return
	}
	ctx.JSON(http.StatusOK, s.store.list(params))
}

func parseListParams(ctx *gin.Context) (listParams, error) {
	p := listParams{page: defaultPage, limit: defaultLimit}

	for _, q := range []struct {
		name string
		dst  **time.Time
	}{{"startDate", &p.start}, {"endDate", &p.end}} {
		raw := ctx.Query(q.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return p, errors.New("invalid " + q.name + ": " + raw)
		}
		*q.dst = &t
	}

	if raw := ctx.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return p, errors.New("invalid page: " + raw)
		}
		p.page = page
	}
	if raw := ctx.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxLimit {
			return p, errors.New("invalid limit: " + raw)
		}
		p.limit = limit
	}
	return p, nil
}

func storeError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, errPVZNotFound),
		errors.Is(err, errActiveReception),
		errors.Is(err, errNoActiveReception),
		errors.Is(err, errNoProductOrReception):
		abort(ctx, http.StatusBadRequest, err.Error())
	default:
		abort(ctx, http.StatusInternalServerError, "internal error")
	}
}
