package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdmx/codejudge/config"
)

func TestLanguagesResolve(t *testing.T) {
	langs := testLanguages(t)

	tests := []struct {
		name     string
		hint     string
		filename string
		want     string
		wantErr  string
	}{
		{name: "ByName", hint: "python", want: "python"},
		{name: "ByNameIgnoresCase", hint: " CPP ", want: "cpp"},
		{name: "ByExtensionHint", hint: ".cc", want: "cpp"},
		{name: "ByExtensionHintWithoutDot", hint: "py", want: "python"},
		{name: "ByFilename", filename: "solution.CPP", want: "cpp"},
		{name: "HintWinsOverFilename", hint: "python", filename: "main.cpp", want: "python"},
		{name: "UnknownHint", hint: "cobol", wantErr: "cobol"},
		{name: "UnknownExtension", filename: "main.rs", wantErr: ".rs"},
		{name: "NoExtension", filename: "Makefile", wantErr: "Makefile"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lang, err := langs.Resolve(tt.hint, tt.filename)
			if tt.wantErr != "" {
				var unknown *UnknownLanguageError
				require.ErrorAs(t, err, &unknown)
				assert.Equal(t, tt.wantErr, unknown.Language)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, lang.Name)
		})
	}
}

func TestNewLanguages(t *testing.T) {
	t.Run("DuplicateExtension", func(t *testing.T) {
		_, err := NewLanguages(
			Language{Name: "c", Kind: Compiled, Extensions: []string{".h"}, CompileCommand: []string{"gcc"}, RunCommand: []string{"./code"}},
			Language{Name: "cpp", Kind: Compiled, Extensions: []string{"H"}, CompileCommand: []string{"g++"}, RunCommand: []string{"./code"}},
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "extension .h claimed by both c and cpp")
	})

	t.Run("DuplicateName", func(t *testing.T) {
		_, err := NewLanguages(
			Language{Name: "python", Kind: Interpreted, RunCommand: []string{"python3"}},
			Language{Name: "Python", Kind: Interpreted, RunCommand: []string{"python3"}},
		)
		require.Error(t, err)
	})

	t.Run("CompiledNeedsCompileCommand", func(t *testing.T) {
		_, err := NewLanguages(Language{Name: "go", Kind: Compiled, RunCommand: []string{"./code"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "compile command is required")
	})

	t.Run("Names", func(t *testing.T) {
		assert.Equal(t, []string{"cpp", "python"}, testLanguages(t).Names())
	})
}

func TestNewLanguagesFromConfig(t *testing.T) {
	cfg := &config.Config{
		Languages: map[string]config.LanguageConfig{
			"cpp": {
				Kind:       "compiled",
				Extensions: []string{".cpp"},
				SourceFile: "code.cpp",
				CompileCmd: `g++ -std=c++17 -O2 -DNAME="two words" -o code code.cpp`,
				RunCmd:     "./code",
			},
			"python": {
				Kind:       "interpreted",
				Extensions: []string{".py"},
				SourceFile: "code.py",
				CompileCmd: "ignored for interpreted languages",
				RunCmd:     "python3 -u code.py",
			},
		},
	}

	langs, err := NewLanguagesFromConfig(cfg)
	require.NoError(t, err)

	cpp, err := langs.Resolve("cpp", "")
	require.NoError(t, err)
	assert.Equal(t, Compiled, cpp.Kind)
	assert.Equal(t, []string{"g++", "-std=c++17", "-O2", "-DNAME=two words", "-o", "code", "code.cpp"}, cpp.CompileCommand)

	py, err := langs.Resolve("", "main.py")
	require.NoError(t, err)
	assert.Equal(t, Interpreted, py.Kind)
	assert.Nil(t, py.CompileCommand)
	assert.Equal(t, []string{"python3", "-u", "code.py"}, py.RunCommand)

	t.Run("InvalidKind", func(t *testing.T) {
		_, err := NewLanguagesFromConfig(&config.Config{
			Languages: map[string]config.LanguageConfig{"x": {Kind: "jit", RunCmd: "x"}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid language kind: jit")
	})

	t.Run("EmptyRunCommand", func(t *testing.T) {
		_, err := NewLanguagesFromConfig(&config.Config{
			Languages: map[string]config.LanguageConfig{"x": {Kind: "interpreted", RunCmd: "  "}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "run_cmd")
	})
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "compiled", Compiled.String())
	assert.Equal(t, "interpreted", Interpreted.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}
