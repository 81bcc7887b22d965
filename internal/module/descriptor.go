package module

// SectionKind identifies which part of the test a module belongs to.
type SectionKind string

const (
	SectionReading   SectionKind = "reading"
	SectionListening SectionKind = "listening"
	SectionWriting   SectionKind = "writing"
	SectionSpeaking  SectionKind = "speaking"
)

// Valid reports whether k is one of the known section kinds.
func (k SectionKind) Valid() bool {
	switch k {
	case SectionReading, SectionListening, SectionWriting, SectionSpeaking:
		return true
	}
	return false
}

// TypeFillBlanks is the component type whose unit of answering is a blank
// rather than a discrete question. Progress for it is reported as a range.
const TypeFillBlanks = "fillblanks"

// ComponentSpec binds one component type to one data set.
type ComponentSpec struct {
	Type            string `json:"type" yaml:"type"`
	SetID           int    `json:"setId" yaml:"setId"`
	QuestionsPerSet int    `json:"questionsPerSet" yaml:"questionsPerSet"`
}

// Descriptor is the ordered plan for one module attempt.
type Descriptor struct {
	FormatVersion    string          `json:"formatVersion,omitempty" yaml:"formatVersion,omitempty"`
	ModuleID         string          `json:"moduleId" yaml:"moduleId"`
	ModuleName       string          `json:"moduleName" yaml:"moduleName"`
	SectionKind      SectionKind     `json:"sectionKind" yaml:"sectionKind"`
	TotalQuestions   int             `json:"totalQuestions" yaml:"totalQuestions"`
	TimeLimitSeconds *int            `json:"timeLimitSeconds" yaml:"timeLimitSeconds"`
	Components       []ComponentSpec `json:"components" yaml:"components"`
}

// Timed reports whether the module runs against a module-wide deadline.
func (d *Descriptor) Timed() bool {
	return d.TimeLimitSeconds != nil && *d.TimeLimitSeconds > 0
}

// ComputedTotal sums questionsPerSet across all components.
func (d *Descriptor) ComputedTotal() int {
	total := 0
	for _, c := range d.Components {
		total += c.QuestionsPerSet
	}
	return total
}

// StartQuestionNumber returns the 1-based global number of the first
// question of component i.
func (d *Descriptor) StartQuestionNumber(i int) int {
	start := 1
	for k := 0; k < i && k < len(d.Components); k++ {
		start += d.Components[k].QuestionsPerSet
	}
	return start
}

// Seconds is a convenience for building a TimeLimitSeconds value.
func Seconds(n int) *int {
	return &n
}
