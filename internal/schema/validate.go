// Package schema turns the artifact structs in internal/artifacts into
// pass/fail validation, returning a JSON-pointer-style path on failure the
// way spec.md §4.2 requires. Struct-tag validation is delegated to
// go-playground/validator (the struct validator codeready-toolchain/tarsy
// and jordigilh/kubernaut both use); this package's own code translates its
// field errors into JSON-pointer paths, and RequireAbsolutePath offers the
// non-absolute-path check as a separate helper that Validate does not run.
package schema

import (
	"fmt"
	"path"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/deepresearch/orchestrator/internal/corerr"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Name fields by their json tag so Namespace carries json names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ValidationError is returned by every Validate* function on failure: a
// JSON-pointer-style field path plus a human message. Multiple failures
// collapse to the first for the returned *corerr.Error's Message, but the
// full list rides in Details["errors"].
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Validate runs struct-tag validation over value and converts the first
// validator.FieldError (if any) plus the full list into a
// *corerr.Error{Code: SCHEMA_VALIDATION_FAILED}.
func Validate(value any) *corerr.Error {
	err := instance().Struct(value)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return corerr.Newf(corerr.CodeSchemaValidationFailed, "validate: %v", err)
	}
	errs := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, ValidationError{
			Path:    fieldErrorPath(fe),
			Message: fieldErrorMessage(fe),
		})
	}
	first := errs[0]
	e := corerr.New(corerr.CodeSchemaValidationFailed, first.Message, map[string]any{
		"path":   first.Path,
		"errors": errs,
	})
	return e
}

// fieldErrorPath converts validator's dotted Namespace (e.g.
// "Manifest.stage.current") into a JSON-pointer path ("/stage/current").
// instance() registers each field's json tag as its validator name, so the
// segments after the root type name already are json names (such as
// "schema_version"); lower-casing only changes a field with no json tag.
func fieldErrorPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	segments := strings.Split(ns, ".")
	if len(segments) <= 1 {
		return "/"
	}
	parts := make([]string, 0, len(segments)-1)
	for _, seg := range segments[1:] {
		// Strip index suffixes like "Entries[0]" -> "entries/0"
		seg = strings.ReplaceAll(seg, "[", "/")
		seg = strings.ReplaceAll(seg, "]", "")
		parts = append(parts, strings.ToLower(seg))
	}
	return "/" + path.Join(parts...)
}

func fieldErrorMessage(fe validator.FieldError) string {
	return fmt.Sprintf("field %q failed %q constraint (value=%v)", fe.Field(), fe.Tag(), fe.Value())
}

// RequireAbsolutePath rejects non-absolute paths recorded in
// artifacts.root, per spec.md §4.2 ("validators reject ... non-absolute
// paths in artifacts.root").
func RequireAbsolutePath(field, value string) *corerr.Error {
	if value == "" || value[0] != '/' {
		return corerr.New(corerr.CodeSchemaValidationFailed, fmt.Sprintf("%s must be an absolute path, got %q", field, value), map[string]any{
			"path": "/" + field,
		})
	}
	return nil
}
