// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	adverrors "grimm.is/advreboot/internal/errors"
)

// LoadFile reads and decodes the HCL configuration file at path, layering
// its attributes over Default() so fields absent from the file keep
// their documented default. A malformed or unreadable file is a
// configuration fault (adverrors.KindConfig), matching spec.md §7's
// "configuration faults abort immediately during setup" policy.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, adverrors.Wrap(err, adverrors.KindConfig, "reading config file "+path)
	}

	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return nil, adverrors.Wrap(diags, adverrors.KindConfig, "parsing config file "+path)
	}

	cfg := Default()
	if diags := gohcl.DecodeBody(f.Body, nil, &cfg); diags.HasErrors() {
		return nil, adverrors.Wrap(diags, adverrors.KindConfig, "decoding config file "+path)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
