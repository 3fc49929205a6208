// Package schemaval validates JSON payloads against the pipeline's
// Draft 2020-12 schemas. Schemas are embedded and addressed by stable
// signals:// URIs; a $ref with any other scheme is a configuration error
// raised at compile time, never skipped.
package schemaval

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Stable schema URIs. These strings interoperate with fixture files and
// must not change.
const (
	FactsSchemaURI = "signals://schemas/email_facts_v1.json"
	PlanSchemaURI  = "signals://schemas/decision_plan_v1.json"
)

const uriScheme = "signals://"

//go:embed schemas/*.json
var schemaFS embed.FS

// embedLoader resolves signals:// URIs to embedded schema files by
// stripping the scheme prefix and reading the corresponding file.
type embedLoader struct{}

func (embedLoader) Load(url string) (any, error) {
	if !strings.HasPrefix(url, uriScheme) {
		return nil, eris.Errorf("schemaval: unsupported schema URI scheme in %q", url)
	}
	path := strings.TrimPrefix(url, uriScheme)
	f, err := schemaFS.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "schemaval: open schema %s", path)
	}
	defer f.Close()
	doc, err := jsonschema.UnmarshalJSON(f)
	if err != nil {
		return nil, eris.Wrapf(err, "schemaval: parse schema %s", path)
	}
	return doc, nil
}

// Validator validates payloads against one compiled schema.
type Validator struct {
	uri     string
	schema  *jsonschema.Schema
	printer *message.Printer
}

// New compiles the schema at the given signals:// URI. Compilation fails
// hard on unresolvable or foreign-scheme $refs.
func New(uri string) (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft2020)
	c.UseLoader(embedLoader{})

	schema, err := c.Compile(uri)
	if err != nil {
		return nil, eris.Wrapf(err, "schemaval: compile %s", uri)
	}
	return &Validator{
		uri:     uri,
		schema:  schema,
		printer: message.NewPrinter(language.English),
	}, nil
}

// NewFacts returns a validator for the EmailFacts contract.
func NewFacts() (*Validator, error) { return New(FactsSchemaURI) }

// NewPlan returns a validator for the DecisionPlan contract.
func NewPlan() (*Validator, error) { return New(PlanSchemaURI) }

// URI returns the stable schema URI this validator enforces.
func (v *Validator) URI() string { return v.uri }

// ErrorsFor validates a decoded JSON value and returns one message per
// violated constraint. Empty means valid.
func (v *Validator) ErrorsFor(payload any) []string {
	err := v.schema.Validate(payload)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	var out []string
	v.flatten(ve, &out)
	return out
}

// Valid reports whether the payload satisfies the schema.
func (v *Validator) Valid(payload any) bool {
	return v.schema.Validate(payload) == nil
}

func (v *Validator) flatten(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/" + strings.Join(ve.InstanceLocation, "/")
		*out = append(*out, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(v.printer)))
		return
	}
	for _, cause := range ve.Causes {
		v.flatten(cause, out)
	}
}

// ToJSONValue round-trips a typed value through JSON so it can be
// validated the same way a wire payload would be.
func ToJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "schemaval: marshal payload")
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, eris.Wrap(err, "schemaval: decode payload")
	}
	return doc, nil
}
