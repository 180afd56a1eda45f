package cassette

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

// ValidateMap checks a wire-format mapping against the embedded CUE schema
// and returns one message per violation. Runs in the validate command and
// the catalog indexer, not on the hot read path.
func ValidateMap(data map[string]any) []string {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource)
	if err := schema.Err(); err != nil {
		return []string{fmt.Sprintf("schema compile: %v", err)}
	}
	def := schema.LookupPath(cue.ParsePath("#Cassette"))
	if err := def.Err(); err != nil {
		return []string{fmt.Sprintf("schema lookup: %v", err)}
	}

	value := ctx.Encode(data)
	if err := value.Err(); err != nil {
		return []string{fmt.Sprintf("encode: %v", err)}
	}

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		var problems []string
		for _, e := range cueerrors.Errors(err) {
			problems = append(problems, e.Error())
		}
		return problems
	}
	return nil
}

// Validate checks a cassette against the embedded schema via its wire form.
func Validate(c *Cassette) []string {
	return ValidateMap(c.ToMap())
}
