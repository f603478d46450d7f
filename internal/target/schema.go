package target

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSrc string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error

	// cue.Context is not safe for concurrent use.
	schemaMu sync.Mutex
)

// SchemaError reports a target document that does not satisfy the schema.
type SchemaError struct {
	Details string
	Err     error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema validation failed: %s", e.Details)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSrc, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile target schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Target"))
		if !schemaDef.Exists() {
			schemaErr = fmt.Errorf("target schema has no #Target definition")
		}
	})
	return schemaCtx, schemaDef, schemaErr
}

// ValidateSchema unifies doc with the #Target definition and requires the
// result to be concrete.
func ValidateSchema(doc *Document) error {
	ctx, def, err := loadSchema()
	if err != nil {
		return err
	}
	schemaMu.Lock()
	defer schemaMu.Unlock()

	// JSON is valid CUE; encoding/json honors omitempty for absent sections.
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode target: %w", err)
	}
	v := ctx.CompileBytes(data, cue.Filename("target.json"))
	if err := v.Err(); err != nil {
		return &SchemaError{Details: errors.Details(err, nil), Err: err}
	}

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &SchemaError{Details: errors.Details(err, nil), Err: err}
	}
	return nil
}
