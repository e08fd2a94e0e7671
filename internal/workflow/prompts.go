package workflow

import (
	"embed"
	"strings"
	"text/template"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

type testGenPrompt struct {
	Language          string
	MethodName        string
	MethodCode        string
	RootDir           string
	SourceFilePath    string
	SourceFileContent string
	TestFilePath      string
	TestFileContent   string
	DirectoryTree     string
	Context           string
}

type autofixPrompt struct {
	Language       string
	RootDir        string
	TestCommand    string
	SourceFilePath string
	SourceCode     string
	TestFilePath   string
	TestCode       string
	ErrorOutput    string
	DirectoryTree  string
	Context        string
}

func render(name string, data any) (string, error) {
	var b strings.Builder
	if err := prompts.ExecuteTemplate(&b, name, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
