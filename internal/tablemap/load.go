package tablemap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"
	"gopkg.in/yaml.v3"
)

// mappingSchema constrains mapping files to a flat struct of strings.
const mappingSchema = `{[string]: string}`

// Load reads a mapping file. The format follows the extension: .cue and
// .json are evaluated with CUE, .yaml and .yml are decoded as YAML.
func Load(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading table mapping: %w", err)
	}
	return Parse(path, data)
}

// Parse decodes mapping data; path selects the format and labels errors.
func Parse(path string, data []byte) (*Mapping, error) {
	var (
		tables map[string]string
		err    error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue", ".json":
		tables, err = decodeCUE(path, ext, data)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &tables)
	default:
		return nil, fmt.Errorf("table mapping %s: unsupported format %q (want .cue, .json, .yaml or .yml)", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("table mapping %s: %w", path, err)
	}

	m, err := New(tables)
	if err != nil {
		return nil, fmt.Errorf("table mapping %s: %w", path, err)
	}
	return m, nil
}

func decodeCUE(path, ext string, data []byte) (map[string]string, error) {
	ctx := cuecontext.New()

	var val cue.Value
	if ext == ".json" {
		expr, err := cuejson.Extract(path, data)
		if err != nil {
			return nil, err
		}
		val = ctx.BuildExpr(expr, cue.Filename(path))
	} else {
		val = ctx.CompileBytes(data, cue.Filename(path))
	}
	if val.Err() != nil {
		return nil, val.Err()
	}

	val = ctx.CompileString(mappingSchema).Unify(val)
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, err
	}

	var tables map[string]string
	if err := val.Decode(&tables); err != nil {
		return nil, err
	}
	return tables, nil
}
