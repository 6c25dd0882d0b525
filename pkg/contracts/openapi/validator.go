package openapi

import (
	"bytes"
	"context"
	_ "embed"
	goerrors "errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

//go:embed specs/rental-api.yaml
var rentalAPI []byte

// Validator checks HTTP traffic against an OpenAPI document
type Validator struct {
	doc    *openapi3.T
	router routers.Router
}

// New returns a validator for the embedded rental API contract.
func New() (*Validator, error) {
	return NewValidatorFromBytes(rentalAPI)
}

// Document returns the embedded OpenAPI document.
func Document() []byte {
	return rentalAPI
}

// NewValidatorFromBytes loads and validates a document and routes requests against it
func NewValidatorFromBytes(specBytes []byte) (*Validator, error) {
	doc, err := openapi3.NewLoader().LoadFromData(specBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI document: %w", err)
	}

	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI document: %w", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to route OpenAPI document: %w", err)
	}

	return &Validator{doc: doc, router: router}, nil
}

// IsUnknownRoute reports whether err came from a request the document does not describe
func IsUnknownRoute(err error) bool {
	return goerrors.Is(err, routers.ErrPathNotFound) || goerrors.Is(err, routers.ErrMethodNotAllowed)
}

func (v *Validator) match(req *http.Request) (*openapi3filter.RequestValidationInput, error) {
	route, params, err := v.router.FindRoute(req)
	if err != nil {
		return nil, fmt.Errorf("no documented operation for %s %s: %w", req.Method, req.URL.Path, err)
	}
	return &openapi3filter.RequestValidationInput{Request: req, PathParams: params, Route: route}, nil
}

// ValidateRequest checks parameters and body. The body is restored after reading.
func (v *Validator) ValidateRequest(req *http.Request) error {
	input, err := v.match(req)
	if err != nil {
		return err
	}
	input.Options = &openapi3filter.Options{MultiError: true}
	if err := openapi3filter.ValidateRequest(req.Context(), input); err != nil {
		return fmt.Errorf("request validation failed: %w", err)
	}
	return nil
}

// ValidateResponse checks status, headers and body of resp as an answer to req
func (v *Validator) ValidateResponse(req *http.Request, resp *http.Response) error {
	input, err := v.match(req)
	if err != nil {
		return err
	}
	input.Options = &openapi3filter.Options{ExcludeRequestBody: true}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	err = openapi3filter.ValidateResponse(req.Context(), &openapi3filter.ResponseValidationInput{
		RequestValidationInput: input,
		Status:                 resp.StatusCode,
		Header:                 resp.Header,
		Body:                   io.NopCloser(bytes.NewReader(body)),
		Options:                &openapi3filter.Options{MultiError: true, IncludeResponseStatus: true},
	})
	if err != nil {
		return fmt.Errorf("response validation failed: %w", err)
	}
	return nil
}

// ValidateExchange checks a request and the response it produced
func (v *Validator) ValidateExchange(req *http.Request, resp *http.Response) error {
	if err := v.ValidateRequest(req); err != nil {
		return err
	}
	return v.ValidateResponse(req, resp)
}

func (v *Validator) OperationID(req *http.Request) (string, error) {
	input, err := v.match(req)
	if err != nil {
		return "", err
	}
	return input.Route.Operation.OperationID, nil
}

// Version is the OpenAPI version the document declares
func (v *Validator) Version() string {
	return v.doc.OpenAPI
}

// Paths lists the documented path templates, sorted
func (v *Validator) Paths() []string {
	if v.doc.Paths == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(v.doc.Paths.Map()))
}
