// Package library loads the module definitions (style, audience, product, ...)
// that prompts are assembled from. A Library is built once and is read-only
// afterwards, so it can be shared by any number of concurrent requests.
package library

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lamim/copyforge/pkg/models"
)

//go:embed defaults/*.yaml
var defaultDefinitions embed.FS

// Kind tags which text a fragment carries
type Kind int

const (
	// KindGeneric is any module type the composer does not know about
	KindGeneric Kind = iota
	// KindFragment modules (style, audience, context) carry prompt_fragment
	KindFragment
	// KindDescription modules (product, cta) carry description
	KindDescription
	// KindFormat modules carry no text, the module name is the label
	KindFormat
)

func (k Kind) String() string {
	switch k {
	case KindFragment:
		return "fragment"
	case KindDescription:
		return "description"
	case KindFormat:
		return "format"
	default:
		return "generic"
	}
}

// KindOf returns the kind for a module type
func KindOf(moduleType string) Kind {
	switch moduleType {
	case models.ModuleStyle, models.ModuleAudience, models.ModuleContext:
		return KindFragment
	case models.ModuleProduct, models.ModuleCTA:
		return KindDescription
	case models.ModuleFormat:
		return KindFormat
	default:
		return KindGeneric
	}
}

// Fragment is one named entry of a module type
type Fragment struct {
	Type           string
	Name           string
	Kind           Kind
	PromptFragment string
	Description    string
}

// Text returns the substitution text for the fragment's kind
func (f Fragment) Text() string {
	switch f.Kind {
	case KindFragment:
		return f.PromptFragment
	case KindDescription:
		return f.Description
	case KindFormat:
		return f.Name
	default:
		if f.PromptFragment != "" {
			return f.PromptFragment
		}
		return f.Description
	}
}

// LoadError records a definition file that was skipped
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("module definition %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ErrDuplicateType is reported when two files map to the same module type
var ErrDuplicateType = errors.New("duplicate module type")

// Library maps module type -> module name -> Fragment
type Library struct {
	modules    map[string]map[string]Fragment
	loadErrors []*LoadError
}

// New builds a library directly from fragments. Later duplicates win.
func New(fragments ...Fragment) *Library {
	lib := &Library{modules: make(map[string]map[string]Fragment)}
	for _, f := range fragments {
		f.Kind = KindOf(f.Type)
		if f.Kind == KindDescription && f.Description == "" {
			f.Description = f.Name
		}
		lib.add(f)
	}
	return lib
}

func (l *Library) add(f Fragment) {
	byName, ok := l.modules[f.Type]
	if !ok {
		byName = make(map[string]Fragment)
		l.modules[f.Type] = byName
	}
	byName[f.Name] = f
}

// rawDefinition is the on-disk shape of one module entry.
// Pointers distinguish an absent field from an empty one.
type rawDefinition struct {
	PromptFragment *string `yaml:"prompt_fragment"`
	Description    *string `yaml:"description"`
}

// Load reads every *.yaml / *.yml file in dir
func Load(dir string, logger *slog.Logger) (*Library, error) {
	return LoadFS(os.DirFS(dir), ".", logger)
}

// LoadDefault loads the definitions compiled into the binary
func LoadDefault(logger *slog.Logger) (*Library, error) {
	return LoadFS(defaultDefinitions, "defaults", logger)
}

// LoadFS reads every definition file in dir of fsys. A file that cannot be
// read or parsed is skipped and recorded in LoadErrors; only an unreadable
// directory fails the load.
func LoadFS(fsys fs.FS, dir string, logger *slog.Logger) (*Library, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "library")

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read module directory: %w", err)
	}

	lib := &Library{modules: make(map[string]map[string]Fragment)}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(path.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		filePath := path.Join(dir, name)
		moduleType := strings.TrimSuffix(name, path.Ext(name))

		if _, exists := lib.modules[moduleType]; exists {
			lib.recordError(logger, filePath, ErrDuplicateType)
			continue
		}

		fragments, err := parseDefinitionFile(fsys, filePath, moduleType, logger)
		if err != nil {
			lib.recordError(logger, filePath, err)
			continue
		}
		if len(fragments) == 0 {
			logger.Debug("Module definition file is empty", "path", filePath)
			continue
		}

		for _, f := range fragments {
			lib.add(f)
		}
	}

	logger.Info("Module library loaded",
		"module_types", len(lib.modules),
		"fragments", lib.Len(),
		"skipped_files", len(lib.loadErrors))

	return lib, nil
}

func (l *Library) recordError(logger *slog.Logger, filePath string, err error) {
	loadErr := &LoadError{Path: filePath, Err: err}
	l.loadErrors = append(l.loadErrors, loadErr)
	logger.Error("Skipping module definition file", "path", filePath, "error", err)
}

func parseDefinitionFile(fsys fs.FS, filePath, moduleType string, logger *slog.Logger) ([]Fragment, error) {
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read: %w", err)
	}

	var raw map[string]*rawDefinition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed YAML: %w", err)
	}

	kind := KindOf(moduleType)
	fragments := make([]Fragment, 0, len(raw))
	for name, def := range raw {
		if def == nil {
			def = &rawDefinition{}
		}
		f := Fragment{Type: moduleType, Name: name, Kind: kind}

		if def.PromptFragment != nil {
			f.PromptFragment = *def.PromptFragment
		}
		if def.Description != nil {
			f.Description = *def.Description
		}

		switch kind {
		case KindFragment:
			if def.PromptFragment == nil {
				logger.Warn("Module has no prompt_fragment, using empty text",
					"module_type", moduleType, "module_name", name)
			}
		case KindDescription:
			if def.Description == nil {
				f.Description = name
			}
		}

		fragments = append(fragments, f)
	}

	return fragments, nil
}

// Lookup returns the fragment for a module type and name
func (l *Library) Lookup(moduleType, moduleName string) (Fragment, bool) {
	f, ok := l.modules[moduleType][moduleName]
	return f, ok
}

// Types returns the loaded module types, sorted
func (l *Library) Types() []string {
	types := make([]string, 0, len(l.modules))
	for t := range l.modules {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Names returns the module names of a type, sorted
func (l *Library) Names(moduleType string) []string {
	byName := l.modules[moduleType]
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Counts returns the number of fragments per module type
func (l *Library) Counts() map[string]int {
	counts := make(map[string]int, len(l.modules))
	for t, byName := range l.modules {
		counts[t] = len(byName)
	}
	return counts
}

// Len returns the total number of fragments
func (l *Library) Len() int {
	n := 0
	for _, byName := range l.modules {
		n += len(byName)
	}
	return n
}

// LoadErrors returns the files skipped during loading
func (l *Library) LoadErrors() []*LoadError {
	out := make([]*LoadError, len(l.loadErrors))
	copy(out, l.loadErrors)
	return out
}
