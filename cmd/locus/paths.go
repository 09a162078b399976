package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

const (
	envLocusModel      = "LOCUS_MODEL"
	envLocusModelsDir  = "LOCUS_MODELS_DIR"
	envLocusPackOutDir = "LOCUS_PACK_OUT_DIR"
)

// stdinIsTTY is a small seam for tests.
var stdinIsTTY = isTTY

// resolvePackOut picks the artifact path for a pack spec and creates its
// parent directory. Without --out the artifact is named after the spec file
// and placed in $LOCUS_PACK_OUT_DIR or ./out; defaulted reports that case.
func resolvePackOut(specPath, outFlag string) (out string, defaulted bool, err error) {
	if out = strings.TrimSpace(outFlag); out != "" {
		out = filepath.Clean(out)
	} else {
		defaulted = true
		name := filepath.Base(filepath.Clean(specPath))
		name = strings.TrimSuffix(name, filepath.Ext(name))
		if name == "" || name == "." || name == string(filepath.Separator) {
			return "", true, fmt.Errorf("invalid pack spec path: %q", specPath)
		}
		dir := strings.TrimSpace(os.Getenv(envLocusPackOutDir))
		if dir == "" {
			dir = filepath.Join(".", "out")
		}
		out = filepath.Join(dir, name+".mcf")
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", defaulted, err
	}
	return out, defaulted, nil
}

// modelEntry is a discovered artifact. Name is the path relative to the
// models directory, so same-named files in different subdirectories stay
// distinguishable in the prompt.
type modelEntry struct {
	Path string
	Name string
}

// resolveModelPath returns --model when set. Otherwise it searches the models
// directory (--models-path, then $LOCUS_MODELS_DIR): a single artifact is
// used as is and several are offered for selection on an interactive stdin.
func resolveModelPath(modelFlag, modelsPath string, stdin io.Reader, stderr io.Writer) (string, error) {
	if m := strings.TrimSpace(modelFlag); m != "" {
		return filepath.Clean(m), nil
	}

	dir := strings.TrimSpace(modelsPath)
	if dir == "" {
		dir = strings.TrimSpace(os.Getenv(envLocusModelsDir))
	}
	if dir == "" {
		return "", fmt.Errorf("--model or --models-path is required unless %s or %s is set", envLocusModel, envLocusModelsDir)
	}

	models, err := discoverMCFModels(dir)
	if err != nil {
		return "", err
	}
	switch {
	case len(models) == 0:
		return "", fmt.Errorf("no .mcf models found in %s", dir)
	case len(models) == 1:
		_, _ = fmt.Fprintf(stderr, "locus: using model %s\n", models[0].Name)
		return models[0].Path, nil
	case !stdinIsTTY():
		return "", fmt.Errorf("%d models found in %s but stdin is not interactive; set --model", len(models), dir)
	}
	return pickModel(dir, models, stdin, stderr)
}

// discoverMCFModels walks dir for .mcf files, case-insensitively, skipping
// hidden subdirectories. Results are sorted by relative name.
func discoverMCFModels(dir string) ([]modelEntry, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("models directory is empty")
	}
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("models path is not a directory: %s", dir)
	}

	var models []modelEntry
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ".mcf") {
			return nil
		}
		name, err := filepath.Rel(dir, path)
		if err != nil {
			name = d.Name()
		}
		models = append(models, modelEntry{Path: path, Name: filepath.ToSlash(name)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(models, func(a, b modelEntry) int { return strings.Compare(a.Name, b.Name) })
	return models, nil
}

// pickModel lists models on stderr and reads a choice from stdin, either the
// number shown or the relative name. Invalid answers are reported and asked
// again until stdin ends.
func pickModel(dir string, models []modelEntry, stdin io.Reader, stderr io.Writer) (string, error) {
	_, _ = fmt.Fprintf(stderr, "locus: %d models in %s\n", len(models), dir)
	for i, m := range models {
		_, _ = fmt.Fprintf(stderr, "  [%d] %s\n", i+1, m.Name)
	}

	sc := bufio.NewScanner(stdin)
	for {
		_, _ = fmt.Fprintf(stderr, "locus: model [1-%d]: ", len(models))
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", err
			}
			return "", errors.New("no model selected on stdin; set --model")
		}
		answer := strings.TrimSpace(sc.Text())
		if answer == "" {
			continue
		}
		if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(models) {
			return models[n-1].Path, nil
		}
		if i := slices.IndexFunc(models, func(m modelEntry) bool { return m.Name == filepath.ToSlash(answer) }); i >= 0 {
			return models[i].Path, nil
		}
		_, _ = fmt.Fprintf(stderr, "locus: invalid selection %q\n", answer)
	}
}

func isTTY() bool {
	st, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return st.Mode()&os.ModeCharDevice != 0
}
