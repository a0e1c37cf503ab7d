package schema

import (
	"bytes"
	"errors"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hlop3z/pgphase/internal/alerr"
)

// LoadFile reads a YAML schema file.
func LoadFile(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, alerr.Wrap(alerr.ErrSchemaInvalid, err, "failed to read schema file").
			With("file", path)
	}
	p, err := Parse(data)
	if err != nil {
		var ae *alerr.Error
		if errors.As(err, &ae) {
			return nil, ae.With("file", path)
		}
		return nil, err
	}
	return p, nil
}

// Parse decodes a YAML schema document. Unknown keys are rejected so typos
// surface instead of silently dropping objects.
func Parse(data []byte) (*Project, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Project
	if err := dec.Decode(&p); err != nil {
		return nil, alerr.Wrap(alerr.ErrSchemaInvalid, err, "failed to parse schema")
	}
	if len(p.Schemas) == 0 {
		return nil, alerr.New(alerr.ErrSchemaInvalid, "schema file declares no schemas").
			WithHelp("add a 'schemas:' list with at least one entry named 'public'")
	}
	return &p, nil
}
