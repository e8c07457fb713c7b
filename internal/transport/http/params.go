package http

import (
	"net/http"
	"strconv"
	"strings"

	apperrors "foodpulse/internal/errors"
	"foodpulse/internal/insights"
	"foodpulse/internal/middleware"
)

// filterQuery holds the dashboard filters shared by every analytics route
type filterQuery struct {
	Cities      []string `json:"city" validate:"omitempty,max=100,dive,min=1,max=100"`
	Memberships []string `json:"membership" validate:"omitempty,max=20,dive,min=1,max=50"`
}

func (q filterQuery) filter() insights.Filter {
	return insights.Filter{Cities: q.Cities, Memberships: q.Memberships}
}

type forecastQuery struct {
	filterQuery
	Periods *int `json:"periods" validate:"omitempty,gte=0,lte=3650"`
}

type segmentsQuery struct {
	filterQuery
	K *int `json:"k" validate:"omitempty,gte=1,lte=50"`
}

type jobsQuery struct {
	Limit *int `json:"limit" validate:"omitempty,gte=1,lte=500"`
}

// queryParser reads and validates query parameters
type queryParser struct {
	validator *middleware.Validator
}

// values returns every non-empty value of a repeatable parameter. A value
// may also hold a comma separated list.
func values(r *http.Request, name string) []string {
	var out []string
	for _, raw := range r.URL.Query()[name] {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// intParam parses an optional integer parameter
func intParam(r *http.Request, name string) (*int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, apperrors.NewValidationErrors([]apperrors.ValidationError{
			{Field: name, Message: name + " must be an integer"},
		})
	}
	return &n, nil
}

func (p queryParser) filter(r *http.Request) (filterQuery, error) {
	q := filterQuery{Cities: values(r, "city"), Memberships: values(r, "membership")}
	return q, p.validator.ValidateStruct(q)
}

func (p queryParser) forecast(r *http.Request) (forecastQuery, error) {
	var q forecastQuery
	var err error
	q.filterQuery = filterQuery{Cities: values(r, "city"), Memberships: values(r, "membership")}
	if q.Periods, err = intParam(r, "periods"); err != nil {
		return q, err
	}
	return q, p.validator.ValidateStruct(q)
}

func (p queryParser) segments(r *http.Request) (segmentsQuery, error) {
	var q segmentsQuery
	var err error
	q.filterQuery = filterQuery{Cities: values(r, "city"), Memberships: values(r, "membership")}
	if q.K, err = intParam(r, "k"); err != nil {
		return q, err
	}
	return q, p.validator.ValidateStruct(q)
}

func (p queryParser) jobs(r *http.Request) (jobsQuery, error) {
	var q jobsQuery
	var err error
	if q.Limit, err = intParam(r, "limit"); err != nil {
		return q, err
	}
	return q, p.validator.ValidateStruct(q)
}
