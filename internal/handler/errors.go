package handler

import (
	"net/http"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/loja-api/internal/domain/auth"
	"github.com/xenking/loja-api/internal/domain/cart"
	"github.com/xenking/loja-api/internal/domain/coupon"
	"github.com/xenking/loja-api/internal/domain/notification"
	"github.com/xenking/loja-api/internal/domain/order"
	"github.com/xenking/loja-api/internal/domain/product"
	"github.com/xenking/loja-api/internal/domain/review"
)

// requestError is a client mistake caught before the domain is called.
type requestError struct {
	msg    string
	err    error
	fields map[string]string
}

func (e *requestError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *requestError) Unwrap() error { return e.err }

func badRequest(msg string, err error) error {
	return &requestError{msg: msg, err: err}
}

func fieldError(name, rule string) error {
	return &requestError{msg: "invalid request", fields: map[string]string{name: rule}}
}

var postalCode = regexp.MustCompile(`^\d{5}-?\d{3}$`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("cep", func(fl validator.FieldLevel) bool {
		return postalCode.MatchString(fl.Field().String())
	})
	return v
}

// check runs struct validation and reports failures per JSON field path.
func (h *Handler) check(req any) error {
	err := h.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return badRequest("invalid request", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		path := fe.Namespace()
		if _, rest, ok := strings.Cut(path, "."); ok {
			path = rest
		}
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[path] = rule
	}
	return &requestError{msg: "invalid request", fields: fields}
}

// statusError is a routing failure with a fixed status.
type statusError struct {
	status int
	msg    string
}

func (e *statusError) Error() string { return e.msg }

var (
	errNoRoute  = &statusError{status: http.StatusNotFound, msg: "route not found"}
	errNoMethod = &statusError{status: http.StatusMethodNotAllowed, msg: "method not allowed"}
)

// apiError is the rendered form of an error.
type apiError struct {
	status  int
	message string
	reason  string
	fields  map[string]string
}

// errorStatus maps err to the response sent to the client. Anything not
// recognised is a 500 with a generic message.
func errorStatus(err error) apiError {
	var (
		statusErr  *statusError
		reqErr     *requestError
		stockErr   *product.InsufficientStockError
		raceErr    *order.CouponRaceError
		invalid    *coupon.InvalidError
		defErr     *coupon.DefinitionError
		qtyErr     *cart.QuantityError
		transition *order.InvalidTransitionError
		inputErr   *review.InputError
	)
	switch {
	case errors.As(err, &statusErr):
		return apiError{status: statusErr.status, message: statusErr.msg}
	case errors.As(err, &reqErr):
		return apiError{status: http.StatusBadRequest, message: reqErr.msg, fields: reqErr.fields}
	case errors.As(err, &defErr):
		return apiError{
			status:  http.StatusBadRequest,
			message: defErr.Error(),
			fields:  map[string]string{defErr.Field: defErr.Reason},
		}
	case errors.As(err, &inputErr):
		return apiError{
			status:  http.StatusBadRequest,
			message: inputErr.Error(),
			fields:  map[string]string{inputErr.Field: inputErr.Reason},
		}
	case errors.As(err, &qtyErr):
		return apiError{status: http.StatusBadRequest, message: qtyErr.Error()}
	case errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, cart.ErrEmpty),
		errors.Is(err, order.ErrInvalidQuantity),
		errors.Is(err, order.ErrInvalidPaymentMethod),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, notification.ErrInvalid):
		return apiError{status: http.StatusBadRequest, message: rootMessage(err)}

	case errors.Is(err, auth.ErrInvalidToken):
		return apiError{status: http.StatusUnauthorized, message: "authentication required"}
	case errors.Is(err, auth.ErrForbidden),
		errors.Is(err, review.ErrNotEligible),
		errors.Is(err, review.ErrForbidden):
		return apiError{status: http.StatusForbidden, message: rootMessage(err)}

	case errors.As(err, &stockErr):
		return apiError{status: http.StatusConflict, message: stockErr.Error(), reason: "insufficient_stock"}
	case errors.As(err, &raceErr):
		return apiError{status: http.StatusConflict, message: raceErr.Error(), reason: raceReason(raceErr.Err)}
	case errors.As(err, &invalid):
		return apiError{status: http.StatusConflict, message: invalid.Reason.Message(), reason: string(invalid.Reason)}
	case errors.As(err, &transition):
		return apiError{status: http.StatusConflict, message: transition.Error(), reason: "invalid_transition"}
	case errors.Is(err, coupon.ErrExhausted),
		errors.Is(err, coupon.ErrAlreadyUsed),
		errors.Is(err, coupon.ErrUnavailable):
		return apiError{status: http.StatusConflict, message: rootMessage(err), reason: raceReason(err)}
	case errors.Is(err, coupon.ErrDuplicateCode),
		errors.Is(err, review.ErrDuplicate),
		errors.Is(err, notification.ErrAlreadyRead):
		return apiError{status: http.StatusConflict, message: rootMessage(err)}

	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, cart.ErrLineNotFound),
		errors.Is(err, review.ErrNotFound),
		errors.Is(err, notification.ErrNotFound):
		var pnf *product.NotFoundError
		if errors.As(err, &pnf) {
			return apiError{status: http.StatusNotFound, message: pnf.Error()}
		}
		return apiError{status: http.StatusNotFound, message: rootMessage(err)}

	default:
		return apiError{status: http.StatusInternalServerError, message: "internal server error"}
	}
}

func raceReason(err error) string {
	switch {
	case errors.Is(err, coupon.ErrExhausted):
		return string(coupon.ReasonExhausted)
	case errors.Is(err, coupon.ErrAlreadyUsed):
		return string(coupon.ReasonAlreadyUsed)
	default:
		return "unavailable"
	}
}

// rootMessage returns the message of the innermost error so that wrapping
// context stays out of responses.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// writeError renders err and logs server-side failures with their cause.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := errorStatus(err)
	lg := zctx.From(r.Context())
	if ae.status >= http.StatusInternalServerError {
		lg.Error("Request failed", zap.Error(err))
	} else {
		lg.Debug("Request rejected", zap.Int("status", ae.status), zap.Error(err))
	}

	writeJSON(w, ae.status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(ae.status)
		strField(e, "message", ae.message)
		if ae.reason != "" {
			strField(e, "reason", ae.reason)
		}
		if len(ae.fields) > 0 {
			e.FieldStart("fields")
			e.ObjStart()
			for _, name := range sortedKeys(ae.fields) {
				strField(e, name, ae.fields[name])
			}
			e.ObjEnd()
		}
		e.ObjEnd()
	})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
