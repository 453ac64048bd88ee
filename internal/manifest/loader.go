package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// LoadDir compiles every .cue manifest under dir (one script per file).
// Results are ordered by file path for deterministic startup. All errors are
// collected rather than stopping at the first, so an operator sees every
// broken manifest at once.
func LoadDir(dir string) ([]*Manifest, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{fmt.Errorf("manifest directory not found: %s", dir)}
	}
	if err != nil {
		return nil, []error{fmt.Errorf("error accessing manifest directory: %w", err)}
	}
	if !info.IsDir() {
		return nil, []error{fmt.Errorf("not a directory: %s", dir)}
	}

	files, err := findCUEFiles(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("error scanning directory: %w", err)}
	}
	if len(files) == 0 {
		return nil, []error{fmt.Errorf("no CUE manifests found in %s", dir)}
	}

	cctx := cuecontext.New()

	var manifests []*Manifest
	var errs []error
	seen := make(map[string]string) // script name -> file

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}

		v := cctx.CompileBytes(data, cue.Filename(path))
		m, err := Compile(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}

		if prev, dup := seen[m.Name]; dup {
			errs = append(errs, fmt.Errorf("%s: script %q already declared in %s", path, m.Name, prev))
			continue
		}
		seen[m.Name] = path
		manifests = append(manifests, m)
	}

	return manifests, errs
}

func findCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".cue") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
