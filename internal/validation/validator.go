// Package validation checks request bodies against embedded JSON schemas.
package validation

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/campusquest/backend/internal/models"
)

// Schema names, one per request body shape.
const (
	PostQuest      = "post_quest"
	HeroAction     = "hero_action"
	PlaceBid       = "place_bid"
	AcceptBid      = "accept_bid"
	CompleteQuest  = "complete_quest"
	RateHero       = "rate_hero"
	RaiseDispute   = "raise_dispute"
	ResolveDispute = "resolve_dispute"
	Register       = "register"
	Login          = "login"
	PostMessage    = "post_message"
)

//go:embed schemas/*.json
var schemaFS embed.FS

type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// New compiles every embedded schema.
func New() (*Validator, error) {
	files, err := fs.Glob(schemaFS, "schemas/*.json")
	if err != nil {
		return nil, err
	}
	schemas := make(map[string]*jsonschema.Schema, len(files))
	for _, file := range files {
		data, err := schemaFS.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", file, err)
		}
		name := strings.TrimSuffix(path.Base(file), ".json")
		c := jsonschema.NewCompiler()
		c.AssertFormat = true
		id := "https://campusquest.local/schemas/" + name + ".json"
		if err := c.AddResource(id, strings.NewReader(string(data))); err != nil {
			return nil, fmt.Errorf("load schema %q: %w", name, err)
		}
		if schemas[name], err = c.Compile(id); err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", name, err)
		}
	}
	return &Validator{schemas: schemas}, nil
}

// Validate rejects body unless it is JSON matching the named schema.
func (v *Validator) Validate(name string, body []byte) error {
	schema, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return models.E(models.ErrValidation, "invalid JSON body")
	}
	if err := schema.Validate(doc); err != nil {
		return models.E(models.ErrValidation, "%s", describe(err))
	}
	return nil
}

// describe flattens a schema error to its first concrete cause.
func describe(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := strings.TrimPrefix(ve.InstanceLocation, "/")
	if loc == "" {
		return ve.Message
	}
	return loc + ": " + ve.Message
}
