package config

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

// validateSchema checks the raw decoded document against the CUE schema.
func validateSchema(doc map[string]any) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	if doc == nil {
		doc = map[string]any{}
	}
	data := ctx.Encode(doc)
	if err := data.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	if err := def.Unify(data).Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// formatCUEError flattens CUE errors into one message, one "path: msg"
// entry per error.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		path := strings.TrimPrefix(strings.Join(e.Path(), "."), "#Config.")
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		if path == "" {
			msgs = append(msgs, msg)
			continue
		}
		msgs = append(msgs, path+": "+msg)
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
