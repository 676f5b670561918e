package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rbroggi/slotcast/internal/core/model"
)

// maxBodyBytes bounds the size of request bodies.
const maxBodyBytes = 1 << 20

// opaqueIDPattern matches the external identifiers clients pick for themselves.
var opaqueIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// sanitizer is implemented by request bodies carrying free text.
type sanitizer interface {
	sanitize(p *bluemonday.Policy)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// registration only fails on an empty tag or a nil func
	_ = v.RegisterValidation("opaqueid", func(fl validator.FieldLevel) bool {
		return opaqueIDPattern.MatchString(fl.Field().String())
	})
	return v
}

// bind decodes the JSON body into dst, sanitizes and validates it. Every failing field is collected
// in the returned ValidationError, which handlers keep appending to.
func (s *Server) bind(r *http.Request, dst sanitizer) *model.ValidationError {
	verr := new(model.ValidationError)

	if r.Body != nil {
		err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
		if err != nil && !errors.Is(err, io.EOF) {
			verr.Add("body", "Request body must be a JSON object.")
			return verr
		}
	}

	dst.sanitize(s.policy)

	err := s.validate.Struct(dst)
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			verr.Add(fe.Field(), fieldMessage(fe))
		}
	}
	return verr
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return fmt.Sprintf("%s must be specified.", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address.", fe.Field())
	case "alphanum":
		return fmt.Sprintf("%s has non-alphanumeric characters.", fe.Field())
	case "opaqueid":
		return fmt.Sprintf("%s may only hold letters, digits, '-' and '_'.", fe.Field())
	case "gte":
		return fmt.Sprintf("%s must be at least %s.", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long.", fe.Field(), fe.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL.", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid.", fe.Field())
	}
}

func clean(p *bluemonday.Policy, value string) string {
	return strings.TrimSpace(p.Sanitize(value))
}

// parseDay parses a calendar day, either as 2006-01-02 or as a full RFC 3339 timestamp whose time
// part is dropped. Empty values are left zero.
func parseDay(verr *model.ValidationError, field, value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if day, err := time.Parse(time.DateOnly, value); err == nil {
		return day
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		verr.Add(field, fmt.Sprintf("%s must be a date (YYYY-MM-DD).", field))
		return time.Time{}
	}
	return t.UTC().Truncate(24 * time.Hour)
}

// parseInstant parses an RFC 3339 timestamp. Empty values are left zero.
func parseInstant(verr *model.ValidationError, field, value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		verr.Add(field, fmt.Sprintf("%s must be an RFC 3339 timestamp.", field))
		return time.Time{}
	}
	return t.UTC()
}

func optionalInstant(verr *model.ValidationError, field, value string) *time.Time {
	if value == "" {
		return nil
	}
	t := parseInstant(verr, field, value)
	return &t
}

type registerRequest struct {
	UUID     string `json:"uuid" validate:"required,opaqueid"`
	Email    string `json:"email" validate:"required,email"`
	UserName string `json:"userName" validate:"omitempty,max=64"`
	Category string `json:"category" validate:"omitempty,alphanum"`
	Image    string `json:"image" validate:"omitempty,url"`
}

func (req *registerRequest) sanitize(p *bluemonday.Policy) {
	req.UUID = clean(p, req.UUID)
	req.Email = strings.TrimSpace(req.Email)
	req.UserName = clean(p, req.UserName)
	req.Category = clean(p, req.Category)
	req.Image = strings.TrimSpace(req.Image)
}

type loginRequest struct {
	UUID string `json:"uuid" validate:"required"`
}

func (req *loginRequest) sanitize(p *bluemonday.Policy) {
	req.UUID = clean(p, req.UUID)
}

type statusRequest struct {
	UUID     string `json:"uuid" validate:"required"`
	UserName string `json:"userName"`
}

func (req *statusRequest) sanitize(p *bluemonday.Policy) {
	req.UUID = clean(p, req.UUID)
	req.UserName = clean(p, req.UserName)
}

type updateProfileRequest struct {
	UserName string `json:"userName" validate:"omitempty,max=64"`
	Category string `json:"category" validate:"omitempty,alphanum"`
}

func (req *updateProfileRequest) sanitize(p *bluemonday.Policy) {
	req.UserName = clean(p, req.UserName)
	req.Category = clean(p, req.Category)
}

type createSlotRequest struct {
	Date      string   `json:"date" validate:"required"`
	StartTime string   `json:"start_time" validate:"required"`
	EndTime   string   `json:"end_time" validate:"required"`
	Category  string   `json:"category" validate:"required"`
	Charge    *float64 `json:"charge" validate:"required,gte=0"`
}

func (req *createSlotRequest) sanitize(p *bluemonday.Policy) {
	req.Date = strings.TrimSpace(req.Date)
	req.StartTime = strings.TrimSpace(req.StartTime)
	req.EndTime = strings.TrimSpace(req.EndTime)
	req.Category = clean(p, req.Category)
}

type updateSlotRequest struct {
	SlotID    string   `json:"slotId" validate:"required"`
	Date      string   `json:"date"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
	Category  string   `json:"category"`
	Charge    *float64 `json:"charge" validate:"omitempty,gte=0"`
}

func (req *updateSlotRequest) sanitize(p *bluemonday.Policy) {
	req.SlotID = strings.TrimSpace(req.SlotID)
	req.Date = strings.TrimSpace(req.Date)
	req.StartTime = strings.TrimSpace(req.StartTime)
	req.EndTime = strings.TrimSpace(req.EndTime)
	req.Category = clean(p, req.Category)
}

// createSessionRequest books the slot when SlotID is set and schedules a broadcast otherwise.
type createSessionRequest struct {
	SlotID    string   `json:"slotId"`
	Attendees []string `json:"attendees" validate:"omitempty,dive,required"`
	Capacity  int      `json:"capacity" validate:"gte=0"`

	SessionName string `json:"sessionName" validate:"required_without=SlotID"`
	SessionDesc string `json:"sessionDesc" validate:"required_without=SlotID"`
	Date        string `json:"date" validate:"required_without=SlotID"`
	StartTime   string `json:"startTime" validate:"required_without=SlotID"`
	// Duration is expressed in minutes.
	Duration float64 `json:"duration" validate:"gte=0"`
	EndTime  string  `json:"endTime"`
	Fee      float64 `json:"fee" validate:"gte=0"`
}

func (req *createSessionRequest) sanitize(p *bluemonday.Policy) {
	req.SlotID = strings.TrimSpace(req.SlotID)
	for i, a := range req.Attendees {
		req.Attendees[i] = clean(p, a)
	}
	req.SessionName = clean(p, req.SessionName)
	req.SessionDesc = clean(p, req.SessionDesc)
	req.Date = strings.TrimSpace(req.Date)
	req.StartTime = strings.TrimSpace(req.StartTime)
	req.EndTime = strings.TrimSpace(req.EndTime)
}

type deleteSessionRequest struct {
	StreamKey string `json:"streamKey" validate:"required"`
}

func (req *deleteSessionRequest) sanitize(*bluemonday.Policy) {
	req.StreamKey = strings.TrimSpace(req.StreamKey)
}

type attendeeRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
	UUID      string `json:"uuid" validate:"required"`
}

func (req *attendeeRequest) sanitize(p *bluemonday.Policy) {
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.UUID = clean(p, req.UUID)
}

type listSessionsRequest struct {
	Date string `json:"date" validate:"required"`
}

func (req *listSessionsRequest) sanitize(*bluemonday.Policy) {
	req.Date = strings.TrimSpace(req.Date)
}
