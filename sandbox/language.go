package sandbox

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	shlex "github.com/anmitsu/go-shlex"

	"github.com/isdmx/codejudge/config"
)

// Kind tells whether a language needs a build step before running.
type Kind int

const (
	Compiled Kind = iota + 1
	Interpreted
)

func (k Kind) String() string {
	switch k {
	case Compiled:
		return "compiled"
	case Interpreted:
		return "interpreted"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind converts a configured kind name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "compiled":
		return Compiled, nil
	case "interpreted":
		return Interpreted, nil
	default:
		return 0, fmt.Errorf("invalid language kind: %s", s)
	}
}

// Language describes how a program is placed, built and run in the sandbox.
type Language struct {
	Name           string
	Kind           Kind
	Extensions     []string
	SourceFile     string
	CompileCommand []string
	RunCommand     []string
}

// Languages resolves language hints and file extensions to configured languages.
type Languages struct {
	byName      map[string]Language
	byExtension map[string]string
}

// NewLanguages indexes langs by name and extension. Two languages claiming
// the same extension is an error.
func NewLanguages(langs ...Language) (*Languages, error) {
	l := &Languages{
		byName:      make(map[string]Language, len(langs)),
		byExtension: make(map[string]string),
	}

	for _, lang := range langs {
		name := strings.ToLower(lang.Name)
		if name == "" {
			return nil, fmt.Errorf("language name must not be empty")
		}
		if _, dup := l.byName[name]; dup {
			return nil, fmt.Errorf("duplicate language: %s", name)
		}
		if lang.Kind == Compiled && len(lang.CompileCommand) == 0 {
			return nil, fmt.Errorf("language %s: compile command is required", name)
		}
		if len(lang.RunCommand) == 0 {
			return nil, fmt.Errorf("language %s: run command is required", name)
		}

		for _, ext := range lang.Extensions {
			ext = normalizeExtension(ext)
			if owner, dup := l.byExtension[ext]; dup {
				return nil, fmt.Errorf("extension %s claimed by both %s and %s", ext, owner, name)
			}
			l.byExtension[ext] = name
		}

		lang.Name = name
		l.byName[name] = lang
	}

	return l, nil
}

// NewLanguagesFromConfig builds the registry from the languages section.
func NewLanguagesFromConfig(cfg *config.Config) (*Languages, error) {
	names := make([]string, 0, len(cfg.Languages))
	for name := range cfg.Languages {
		names = append(names, name)
	}
	sort.Strings(names)

	langs := make([]Language, 0, len(names))
	for _, name := range names {
		lc := cfg.Languages[name]

		kind, err := ParseKind(lc.Kind)
		if err != nil {
			return nil, fmt.Errorf("language %s: %w", name, err)
		}

		lang := Language{
			Name:       name,
			Kind:       kind,
			Extensions: lc.Extensions,
			SourceFile: lc.SourceFile,
		}
		if lang.RunCommand, err = splitCommand(lc.RunCmd); err != nil {
			return nil, fmt.Errorf("language %s: run_cmd: %w", name, err)
		}
		if kind == Compiled {
			if lang.CompileCommand, err = splitCommand(lc.CompileCmd); err != nil {
				return nil, fmt.Errorf("language %s: compile_cmd: %w", name, err)
			}
		}

		langs = append(langs, lang)
	}

	return NewLanguages(langs...)
}

// Resolve picks a language from hint, which may be a language name or an
// extension, or else from the extension of filename.
func (l *Languages) Resolve(hint, filename string) (Language, error) {
	if hint != "" {
		key := strings.ToLower(strings.TrimSpace(hint))
		if lang, ok := l.byName[key]; ok {
			return lang, nil
		}
		if name, ok := l.byExtension[normalizeExtension(key)]; ok {
			return l.byName[name], nil
		}
		return Language{}, &UnknownLanguageError{Language: hint}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if name, ok := l.byExtension[ext]; ok {
		return l.byName[name], nil
	}
	if ext == "" {
		return Language{}, &UnknownLanguageError{Language: filename}
	}
	return Language{}, &UnknownLanguageError{Language: ext}
}

// Names lists the configured language names in order.
func (l *Languages) Names() []string {
	names := make([]string, 0, len(l.byName))
	for name := range l.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeExtension(ext string) string {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func splitCommand(cmd string) ([]string, error) {
	args, err := shlex.Split(cmd, true)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("command must not be empty")
	}
	return args, nil
}
