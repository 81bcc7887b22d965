package module

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDescriptor() *Descriptor {
	return &Descriptor{
		ModuleID:         "reading-a",
		ModuleName:       "Reading A",
		SectionKind:      SectionReading,
		TotalQuestions:   7,
		TimeLimitSeconds: Seconds(1200),
		Components: []ComponentSpec{
			{Type: TypeFillBlanks, SetID: 1, QuestionsPerSet: 5},
			{Type: "daily1", SetID: 2, QuestionsPerSet: 2},
		},
	}
}

func TestCheckQuestionCount_Valid(t *testing.T) {
	d := sampleDescriptor()
	require.NoError(t, CheckQuestionCount(d))
	assert.Equal(t, d.TotalQuestions, d.ComputedTotal())
}

func TestCheckQuestionCount_Mismatch(t *testing.T) {
	d := sampleDescriptor()
	d.TotalQuestions = 8

	err := CheckQuestionCount(d)
	require.Error(t, err)

	var mismatch *CountMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, 8, mismatch.Declared)
	assert.Equal(t, 7, mismatch.Computed)
}

func TestStartQuestionNumber(t *testing.T) {
	d := sampleDescriptor()
	assert.Equal(t, 1, d.StartQuestionNumber(0))
	assert.Equal(t, 6, d.StartQuestionNumber(1))
	assert.Equal(t, 8, d.StartQuestionNumber(2))
}

func TestTimed(t *testing.T) {
	d := sampleDescriptor()
	assert.True(t, d.Timed())

	d.TimeLimitSeconds = nil
	assert.False(t, d.Timed())

	d.TimeLimitSeconds = Seconds(0)
	assert.False(t, d.Timed())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *Descriptor)
		wantErr bool
	}{
		{"valid", func(d *Descriptor) {}, false},
		{"no components", func(d *Descriptor) { d.Components = nil }, true},
		{"bad section", func(d *Descriptor) { d.SectionKind = "maths" }, true},
		{"empty type", func(d *Descriptor) { d.Components[0].Type = "" }, true},
		{"zero questions", func(d *Descriptor) { d.Components[1].QuestionsPerSet = 0 }, true},
		{"format v1.2.0", func(d *Descriptor) { d.FormatVersion = "v1.2.0" }, false},
		{"format v2", func(d *Descriptor) { d.FormatVersion = "v2.0.0" }, true},
		{"format garbage", func(d *Descriptor) { d.FormatVersion = "latest" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := sampleDescriptor()
			tt.mutate(d)
			err := Validate(d)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidate_MismatchIsNotStructural(t *testing.T) {
	d := sampleDescriptor()
	d.TotalQuestions = 3
	assert.NoError(t, Validate(d))
}

func TestParseJSON(t *testing.T) {
	raw := []byte(`{
		"moduleId": "reading-a",
		"moduleName": "Reading A",
		"sectionKind": "reading",
		"totalQuestions": 7,
		"timeLimitSeconds": 1200,
		"components": [
			{"type": "fillblanks", "setId": 1, "questionsPerSet": 5},
			{"type": "daily1", "setId": 2, "questionsPerSet": 2}
		]
	}`)

	d, err := ParseJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, "reading-a", d.ModuleID)
	assert.Equal(t, SectionReading, d.SectionKind)
	require.NotNil(t, d.TimeLimitSeconds)
	assert.Equal(t, 1200, *d.TimeLimitSeconds)
	require.Len(t, d.Components, 2)
	assert.Equal(t, TypeFillBlanks, d.Components[0].Type)
}

func TestParseJSON_NullTimeLimit(t *testing.T) {
	raw := []byte(`{"moduleId":"w","sectionKind":"writing","totalQuestions":1,"timeLimitSeconds":null,
		"components":[{"type":"writing","setId":3,"questionsPerSet":1}]}`)

	d, err := ParseJSON(raw)
	require.NoError(t, err)
	assert.Nil(t, d.TimeLimitSeconds)
	assert.False(t, d.Timed())
}

func TestParseJSON_SchemaViolation(t *testing.T) {
	raw := []byte(`{"moduleId":"x","sectionKind":"reading","totalQuestions":1,
		"components":[{"type":"daily1","setId":"one","questionsPerSet":1}]}`)

	_, err := ParseJSON(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation failed")
}

func TestLoadFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "listening.yaml")
	content := `moduleId: listening-a
moduleName: Listening A
sectionKind: listening
totalQuestions: 3
timeLimitSeconds: 600
components:
  - type: listening
    setId: 4
    questionsPerSet: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	d, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, SectionListening, d.SectionKind)
	assert.Equal(t, 3, d.ComputedTotal())
	assert.True(t, d.Timed())
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}
