package registry

import (
	"strings"
	"testing"

	"gradex/internal/execution/model"
	appErr "gradex/pkg/errors"
)

func TestResolveKnownLanguages(t *testing.T) {
	t.Parallel()
	for _, lang := range []model.Language{
		model.LanguageJavaScript,
		model.LanguagePython,
		model.LanguageJava,
		model.LanguageGo,
	} {
		rt, err := Resolve(lang)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", lang, err)
		}
		if rt.SourceFile == "" {
			t.Fatalf("%s: missing source file", lang)
		}
		if rt.RunCmdTpl == "" {
			t.Fatalf("%s: missing run command", lang)
		}
		if rt.BaseTimeLimitMs <= 0 || rt.BaseMemoryLimitMb <= 0 {
			t.Fatalf("%s: missing base limits", lang)
		}
	}
}

func TestResolveUnknownLanguage(t *testing.T) {
	t.Parallel()
	_, err := Resolve("brainfuck")
	if !appErr.Is(err, appErr.LanguageNotSupported) {
		t.Fatalf("expected LanguageNotSupported, got %v", err)
	}
}

func TestLanguagesCatalog(t *testing.T) {
	t.Parallel()
	langs := Languages()
	if len(langs) != 4 {
		t.Fatalf("expected 4 languages, got %d", len(langs))
	}
	if langs[0].ID != model.LanguageJavaScript || !langs[0].Popular {
		t.Fatalf("javascript should lead the catalog as a popular language")
	}
}

func TestRunCommandRendering(t *testing.T) {
	t.Parallel()

	java, err := Resolve(model.LanguageJava)
	if err != nil {
		t.Fatalf("resolve java: %v", err)
	}
	cmd, err := java.RunCommand(512)
	if err != nil {
		t.Fatalf("run command: %v", err)
	}
	joined := strings.Join(cmd, " ")
	if !strings.Contains(joined, "-Xmx512m") {
		t.Fatalf("memory limit not substituted: %v", cmd)
	}

	golang, err := Resolve(model.LanguageGo)
	if err != nil {
		t.Fatalf("resolve go: %v", err)
	}
	compile, err := golang.CompileCommand()
	if err != nil {
		t.Fatalf("compile command: %v", err)
	}
	if compile[0] != "go" || compile[len(compile)-1] != "main.go" {
		t.Fatalf("unexpected compile command: %v", compile)
	}
}

func TestInterpretedLanguagesHaveNoCompileStep(t *testing.T) {
	t.Parallel()
	js, _ := Resolve(model.LanguageJavaScript)
	cmd, err := js.CompileCommand()
	if err != nil {
		t.Fatalf("compile command: %v", err)
	}
	if cmd != nil {
		t.Fatalf("javascript should not compile, got %v", cmd)
	}
}

func TestHarnessSource(t *testing.T) {
	t.Parallel()

	js := HarnessSource(model.LanguageJavaScript)
	if !strings.Contains(js, "solution.js") || !strings.Contains(js, "JSON.stringify") {
		t.Fatalf("javascript harness looks wrong")
	}
	py := HarnessSource(model.LanguagePython)
	if !strings.Contains(py, "solution.py") || !strings.Contains(py, "json.dumps") {
		t.Fatalf("python harness looks wrong")
	}
	if HarnessSource(model.LanguageGo) != "" {
		t.Fatalf("go runs without a harness")
	}
	if HarnessSource(model.LanguageJava) != "" {
		t.Fatalf("java runs without a harness")
	}
}
