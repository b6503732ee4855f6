package controller

import (
	"errors"

	"github.com/joneldiablo/adba/pkg/query"
	"github.com/joneldiablo/adba/pkg/status"
)

// Response is the envelope every action produces. List results carry the
// paging fields at the top level.
type Response struct {
	Error       bool   `json:"error"`
	Success     bool   `json:"success"`
	Status      int    `json:"status"`
	Code        int    `json:"code"`
	Description string `json:"description"`
	Data        any    `json:"data,omitempty"`

	Total  *int64 `json:"total,omitempty"`
	Limit  any    `json:"limit,omitempty"`
	Offset *int   `json:"offset,omitempty"`
	Page   *int   `json:"page,omitempty"`

	RequestID string `json:"requestId,omitempty"`
}

// Envelope builds a response for the status and code pair. Statuses of 400
// and above are failures.
func Envelope(httpStatus, code int, data any) Response {
	c, err := status.Get(httpStatus, code)
	if err != nil {
		c = status.MustGet(500, 0)
	}
	failed := c.Status >= 400
	return Response{
		Error:       failed,
		Success:     !failed,
		Status:      c.Status,
		Code:        c.Code,
		Description: c.Description,
		Data:        data,
	}
}

func Success(data any) Response {
	return Envelope(200, 0, data)
}

// SuccessMerge spreads a list result over a success envelope.
func SuccessMerge(res *query.Result) Response {
	r := Envelope(200, 0, res.Data)
	total, offset := res.Total, res.Offset
	r.Total = &total
	r.Limit = res.Limit
	r.Offset = &offset
	r.Page = res.Page
	return r
}

// Fail converts a store error into a 500 carrying the error message.
func Fail(err error) Response {
	return Envelope(500, 0, err.Error())
}

// NotFound is the 404 carrying the criteria that matched nothing.
func NotFound(criteria any) Response {
	return Envelope(404, 0, criteria)
}

// BadRequest is the 400 for input the translator rejected.
func BadRequest(err error) Response {
	return Envelope(400, 0, err.Error())
}

// FromError picks BadRequest for search errors and Fail for everything else.
func FromError(err error) Response {
	if errors.Is(err, query.ErrInvalidSearch) || errors.Is(err, query.ErrInvalidIdentifier) {
		return BadRequest(err)
	}
	return Fail(err)
}
