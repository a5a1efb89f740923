package policy

import (
	"bytes"
	"io"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/spf13/afero"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// Load reads a policy file. Files ending in .yaml or .yml are YAML, anything
// else is HCL. Fields left out fall back to Default, and the result is
// validated before it is returned.
func Load(fs afero.Fs, path string) (*Policy, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Errorf("reading policy file: %w", err)
	}

	var p *Policy
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		p, err = decodeYAML(data)
	default:
		p, err = decodeHCL(data, path)
	}
	if err != nil {
		return nil, err
	}

	p = p.withDefaults()
	if err := p.Validate(); err != nil {
		return nil, errors.Errorf("validating policy %s: %w", path, err)
	}

	return p, nil
}

func decodeYAML(data []byte) (*Policy, error) {
	var p Policy
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&p); err != nil && err != io.EOF {
		return nil, errors.Errorf("parsing YAML: %w", err)
	}
	return &p, nil
}

func decodeHCL(data []byte, path string) (*Policy, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing HCL: %s", diags.Error())
	}

	ctx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"ns":   wellKnownObject(),
			"core": cty.StringVal(CoreNamespace),
		},
	}

	var p Policy
	diags = gohcl.DecodeBody(file.Body, ctx, &p)
	if diags.HasErrors() {
		return nil, errors.Errorf("decoding HCL: %s", diags.Error())
	}

	return &p, nil
}

// wellKnownObject exposes WellKnown to HCL as `ns.<name>`.
func wellKnownObject() cty.Value {
	attrs := make(map[string]cty.Value, len(WellKnown))
	for name, uri := range WellKnown {
		attrs[name] = cty.StringVal(uri)
	}
	return cty.ObjectVal(attrs)
}
