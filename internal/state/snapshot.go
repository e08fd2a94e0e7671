package state

import (
	"maps"

	"github.com/deixis/redgreen/internal/runner"
)

// OperationStatus is the progress of a generation or autofix operation.
type OperationStatus string

const (
	Idle       OperationStatus = "idle"
	InProgress OperationStatus = "in_progress"
	Succeeded  OperationStatus = "success"
	Failed     OperationStatus = "error"
)

// Page is the panel page a client is showing.
type Page string

const (
	PageHome     Page = "home"
	PageSettings Page = "settings"
)

// Operation is the state of a long-running AI operation.
type Operation struct {
	Status  OperationStatus `json:"status"`
	Message string          `json:"message,omitempty"`
}

// RunnerState is the test runner's part of the snapshot. It is owned by
// the session controller and always replaced as a whole.
type RunnerState struct {
	Status             runner.Status `json:"status"`
	IsWatchModeEnabled bool          `json:"isWatchModeEnabled"`
	Output             string        `json:"output"`
}

// Snapshot is the complete application state seen by subscribers.
type Snapshot struct {
	SourceFilePath        string            `json:"sourceFilePath"`
	TestFilePath          string            `json:"testFilePath"`
	TestCommand           string            `json:"testCommand"`
	TestMappings          map[string]string `json:"testMappings"`
	CurrentTestGeneration Operation         `json:"currentTestGeneration"`
	CurrentAutofix        Operation         `json:"currentAutofix"`
	TestRunner            RunnerState       `json:"testRunner"`
	SelectedModelProvider string            `json:"selectedModelProvider"`
	IsAPIKeySet           bool              `json:"isApiKeySet"`
	CurrentPage           Page              `json:"currentPage"`
}

// Initial returns the snapshot a new session starts from.
func Initial() Snapshot {
	return Snapshot{
		TestMappings:          map[string]string{},
		CurrentTestGeneration: Operation{Status: Idle},
		CurrentAutofix:        Operation{Status: Idle},
		TestRunner:            RunnerState{Status: runner.NotRun},
		SelectedModelProvider: "openai",
		CurrentPage:           PageHome,
	}
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	c := s
	c.TestMappings = maps.Clone(s.TestMappings)
	if c.TestMappings == nil {
		c.TestMappings = map[string]string{}
	}
	return c
}

// Patch is a partial update. Every non-nil field replaces the matching
// snapshot field wholesale; nil fields are left untouched.
type Patch struct {
	SourceFilePath        *string
	TestFilePath          *string
	TestCommand           *string
	TestMappings          map[string]string // nil leaves mappings untouched
	CurrentTestGeneration *Operation
	CurrentAutofix        *Operation
	TestRunner            *RunnerState
	SelectedModelProvider *string
	IsAPIKeySet           *bool
	CurrentPage           *Page
}

// Set returns a pointer to v, for building a Patch inline.
func Set[T any](v T) *T {
	return &v
}

// apply merges p into s. s must be exclusively owned by the caller.
func (p Patch) apply(s *Snapshot) {
	if p.SourceFilePath != nil {
		s.SourceFilePath = *p.SourceFilePath
	}
	if p.TestFilePath != nil {
		s.TestFilePath = *p.TestFilePath
	}
	if p.TestCommand != nil {
		s.TestCommand = *p.TestCommand
	}
	if p.TestMappings != nil {
		s.TestMappings = maps.Clone(p.TestMappings)
	}
	if p.CurrentTestGeneration != nil {
		s.CurrentTestGeneration = *p.CurrentTestGeneration
	}
	if p.CurrentAutofix != nil {
		s.CurrentAutofix = *p.CurrentAutofix
	}
	if p.TestRunner != nil {
		s.TestRunner = *p.TestRunner
	}
	if p.SelectedModelProvider != nil {
		s.SelectedModelProvider = *p.SelectedModelProvider
	}
	if p.IsAPIKeySet != nil {
		s.IsAPIKeySet = *p.IsAPIKeySet
	}
	if p.CurrentPage != nil {
		s.CurrentPage = *p.CurrentPage
	}
}
