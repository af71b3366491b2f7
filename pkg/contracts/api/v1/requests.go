// Package api contains API contract definitions for the trends daemon.
// Version v1 represents the current stable API version.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// DateLayout is the wire format for all date fields.
const DateLayout = "2006-01-02"

// Run API Requests

// StartRunRequest represents a request to start a collection run. The
// remote compares at most five terms per query, so Keywords is capped
// accordingly.
type StartRunRequest struct {
	Keywords   []string `json:"keywords" validate:"required,min=1,max=5,dive,min=1,max=128"`
	Mode       string   `json:"mode" validate:"required,oneof=single quarters years anchored"`
	Start      string   `json:"start,omitempty" validate:"omitempty,datetime=2006-01-02"`
	End        string   `json:"end,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Anchor     string   `json:"anchor,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Category   string   `json:"category,omitempty"`
	OutputName string   `json:"output_name,omitempty"`
	NoResolve  bool     `json:"no_resolve,omitempty"`
	KeepRaw    bool     `json:"keep_raw,omitempty"`
	XLSX       bool     `json:"xlsx,omitempty"`
	ZeroFill   bool     `json:"zero_fill,omitempty"`
}

// Bind implements the render.Binder interface for request validation.
func (s *StartRunRequest) Bind(_ *http.Request) error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("field %s failed %s validation", f.Field(), f.Tag())
		}
		return err
	}

	// Cross-field rules per scheduling mode
	switch s.Mode {
	case "single":
		if s.Start == "" || s.End == "" {
			return errors.New("single mode requires start and end dates")
		}
		start, _ := time.Parse(DateLayout, s.Start)
		end, _ := time.Parse(DateLayout, s.End)
		if !end.After(start) {
			return fmt.Errorf("end date %s must be after start date %s", s.End, s.Start)
		}
	case "quarters", "years":
		if s.Start == "" {
			return fmt.Errorf("%s mode requires a start date", s.Mode)
		}
	case "anchored":
		if s.Anchor == "" {
			return errors.New("anchored mode requires an anchor date")
		}
	}

	return nil
}

// StartDate returns the parsed start date. Valid only after Bind.
func (s *StartRunRequest) StartDate() time.Time {
	t, _ := time.Parse(DateLayout, s.Start)
	return t
}

// EndDate returns the parsed end date. Valid only after Bind.
func (s *StartRunRequest) EndDate() time.Time {
	t, _ := time.Parse(DateLayout, s.End)
	return t
}

// AnchorDate returns the parsed anchor date. Valid only after Bind.
func (s *StartRunRequest) AnchorDate() time.Time {
	t, _ := time.Parse(DateLayout, s.Anchor)
	return t
}

// RunListRequest represents query parameters for listing runs
type RunListRequest struct {
	Status string `json:"status" query:"status" validate:"omitempty,oneof=pending running completed failed cancelled"`
}

// Validate checks the query parameters. List requests carry no body,
// so this replaces Bind.
func (l *RunListRequest) Validate() error {
	if err := validate.Struct(l); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("field %s failed %s validation", f.Field(), f.Tag())
		}
		return err
	}
	return nil
}
