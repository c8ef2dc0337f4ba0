// Package registry is the static catalog of supported language runtimes.
// It is a pure lookup with no I/O and no mutable state, safe to share
// across concurrent callers without locking.
package registry

import (
	"strconv"
	"strings"

	"github.com/google/shlex"

	"gradex/internal/execution/model"
	appErr "gradex/pkg/errors"
)

// RuntimeSpec defines how to materialize, compile and run one language.
type RuntimeSpec struct {
	ID            model.Language
	Name          string
	Version       string
	FileExtension string

	// SourceFile is the name the candidate code is written to inside the
	// scratch dir. EntryFile, when set, names the generated harness that
	// is executed instead of the candidate file directly.
	SourceFile string
	EntryFile  string
	BinaryFile string

	CompileEnabled bool
	CompileCmdTpl  string
	RunCmdTpl      string
	Env            []string

	BaseTimeLimitMs   int64
	BaseMemoryLimitMb int64

	Popular bool
}

// LanguageInfo is the public catalog entry returned by the languages endpoint.
type LanguageInfo struct {
	ID        model.Language `json:"id"`
	Name      string         `json:"name"`
	Extension string         `json:"extension"`
	Version   string         `json:"version"`
	Popular   bool           `json:"popular"`
}

var runtimes = []RuntimeSpec{
	{
		ID:                model.LanguageJavaScript,
		Name:              "JavaScript",
		Version:           "node 20",
		FileExtension:     ".js",
		SourceFile:        "solution.js",
		EntryFile:         "main.js",
		RunCmdTpl:         "node {entry}",
		Env:               []string{"NODE_OPTIONS=--max-old-space-size={memoryMb}"},
		BaseTimeLimitMs:   5000,
		BaseMemoryLimitMb: 256,
		Popular:           true,
	},
	{
		ID:                model.LanguagePython,
		Name:              "Python",
		Version:           "3.12",
		FileExtension:     ".py",
		SourceFile:        "solution.py",
		EntryFile:         "main.py",
		RunCmdTpl:         "python3 {entry}",
		BaseTimeLimitMs:   5000,
		BaseMemoryLimitMb: 256,
		Popular:           true,
	},
	{
		ID:                model.LanguageJava,
		Name:              "Java",
		Version:           "openjdk 21",
		FileExtension:     ".java",
		SourceFile:        "Main.java",
		CompileEnabled:    true,
		CompileCmdTpl:     "javac {source}",
		RunCmdTpl:         "java -XX:+UseSerialGC -Xmx{memoryMb}m Main",
		BaseTimeLimitMs:   10000,
		BaseMemoryLimitMb: 512,
		Popular:           false,
	},
	{
		ID:                model.LanguageGo,
		Name:              "Go",
		Version:           "1.22",
		FileExtension:     ".go",
		SourceFile:        "main.go",
		BinaryFile:        "solution",
		CompileEnabled:    true,
		CompileCmdTpl:     "go build -o {binary} {source}",
		RunCmdTpl:         "./{binary}",
		Env:               []string{"GOCACHE=/tmp/gocache", "CGO_ENABLED=0"},
		BaseTimeLimitMs:   10000,
		BaseMemoryLimitMb: 512,
		Popular:           false,
	},
}

var runtimeIndex = buildIndex()

func buildIndex() map[model.Language]RuntimeSpec {
	idx := make(map[model.Language]RuntimeSpec, len(runtimes))
	for _, rt := range runtimes {
		idx[rt.ID] = rt
	}
	return idx
}

// Resolve returns the runtime spec for a language or LanguageNotSupported.
func Resolve(lang model.Language) (RuntimeSpec, error) {
	rt, ok := runtimeIndex[lang]
	if !ok {
		return RuntimeSpec{}, appErr.New(appErr.LanguageNotSupported).
			WithDetail("language", string(lang))
	}
	return rt, nil
}

// Languages returns the catalog in declaration order.
func Languages() []LanguageInfo {
	out := make([]LanguageInfo, 0, len(runtimes))
	for _, rt := range runtimes {
		out = append(out, LanguageInfo{
			ID:        rt.ID,
			Name:      rt.Name,
			Extension: rt.FileExtension,
			Version:   rt.Version,
			Popular:   rt.Popular,
		})
	}
	return out
}

// CompileCommand renders the compile command for a runtime. Returns nil for
// interpreted languages.
func (rt RuntimeSpec) CompileCommand() ([]string, error) {
	if !rt.CompileEnabled {
		return nil, nil
	}
	return rt.renderCommand(rt.CompileCmdTpl, 0)
}

// RunCommand renders the run command for a runtime.
func (rt RuntimeSpec) RunCommand(memoryMb int64) ([]string, error) {
	return rt.renderCommand(rt.RunCmdTpl, memoryMb)
}

// RenderEnv substitutes limit placeholders into the runtime environment.
func (rt RuntimeSpec) RenderEnv(memoryMb int64) []string {
	if len(rt.Env) == 0 {
		return nil
	}
	out := make([]string, 0, len(rt.Env))
	for _, kv := range rt.Env {
		out = append(out, substitute(kv, rt, memoryMb))
	}
	return out
}

func (rt RuntimeSpec) renderCommand(tpl string, memoryMb int64) ([]string, error) {
	args, err := shlex.Split(tpl)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalServerError, "parse command template %q", tpl)
	}
	for i := range args {
		args[i] = substitute(args[i], rt, memoryMb)
	}
	return args, nil
}

func substitute(s string, rt RuntimeSpec, memoryMb int64) string {
	s = strings.ReplaceAll(s, "{source}", rt.SourceFile)
	s = strings.ReplaceAll(s, "{entry}", rt.EntryFile)
	s = strings.ReplaceAll(s, "{binary}", rt.BinaryFile)
	if memoryMb > 0 {
		s = strings.ReplaceAll(s, "{memoryMb}", strconv.FormatInt(memoryMb, 10))
	}
	return s
}
