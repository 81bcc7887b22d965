package questionset

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/abhisek/examrun/internal/module"
	"github.com/abhisek/examrun/internal/session"
)

// Set is the session.Component for every shipped type tag. Its behavior
// differs per type only through its Profile.
type Set struct {
	spec    module.ComponentSpec
	host    session.Host
	opts    session.Options
	profile Profile
	loader  Loader
	log     zerolog.Logger

	mu           sync.Mutex
	data         *Data
	items        []Item
	idx          int
	responses    []*session.AnswerRecord
	audioPlaying bool
	submitted    bool
	cleaned      bool
	done         chan struct{}

	retake       *session.RetakeItem
	retakeAnswer *session.AnswerRecord
}

var _ session.Component = (*Set)(nil)

// NewSet creates an unloaded set. Data is read in Init.
func NewSet(spec module.ComponentSpec, host session.Host, opts session.Options, profile Profile, loader Loader, log zerolog.Logger) *Set {
	if host == nil {
		host = session.NopHost{}
	}
	return &Set{
		spec:    spec,
		host:    host,
		opts:    opts,
		profile: profile,
		loader:  loader,
		log:     log.With().Str("component", "questionset").Str("type", spec.Type).Int("set_id", spec.SetID).Logger(),
		done:    make(chan struct{}),
	}
}

func (s *Set) load(ctx context.Context) error {
	data, err := s.loader.Load(ctx, s.spec.Type, s.spec.SetID)
	if err != nil {
		return err
	}
	if len(data.Items) < s.spec.QuestionsPerSet {
		return fmt.Errorf("%s set %d has %d items, module expects %d: %w",
			s.spec.Type, s.spec.SetID, len(data.Items), s.spec.QuestionsPerSet, ErrNotEnoughItems)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	s.items = data.Items[:s.spec.QuestionsPerSet]
	s.responses = make([]*session.AnswerRecord, len(s.items))
	return nil
}

func (s *Set) Init(ctx context.Context) error {
	if err := s.load(ctx); err != nil {
		return err
	}
	s.log.Debug().Int("items", len(s.items)).Msg("set loaded")

	s.host.UpdateCurrentQuestion(0)
	if s.profile.QuestionSeconds > 0 {
		s.host.StartQuestionTimer(s.profile.QuestionSeconds)
	}
	return nil
}

func (s *Set) Result(ctx context.Context) (session.ComponentResult, error) {
	select {
	case <-s.done:
		return session.ComponentResult{Answers: s.Answers()}, nil
	case <-ctx.Done():
		return session.ComponentResult{}, ctx.Err()
	}
}

func (s *Set) NextQuestion() bool {
	s.mu.Lock()
	if s.items == nil || s.submitted || s.idx+1 >= len(s.items) {
		s.mu.Unlock()
		return false
	}
	s.idx++
	s.audioPlaying = false
	idx := s.idx
	s.mu.Unlock()

	s.host.UpdateCurrentQuestion(idx)
	if s.profile.QuestionSeconds > 0 {
		s.host.StartQuestionTimer(s.profile.QuestionSeconds)
	}
	return true
}

// Previous moves back one item. Only block sets allow it.
func (s *Set) Previous() bool {
	s.mu.Lock()
	if !s.profile.Block || s.submitted || s.idx == 0 {
		s.mu.Unlock()
		return false
	}
	s.idx--
	idx := s.idx
	s.mu.Unlock()

	s.host.UpdateCurrentQuestion(idx)
	return true
}

func (s *Set) Submit() {
	s.mu.Lock()
	if s.submitted {
		s.mu.Unlock()
		return
	}
	s.submitted = true
	s.audioPlaying = false
	close(s.done)
	s.mu.Unlock()

	s.host.StopQuestionTimer()
	s.log.Debug().Int("answered", len(s.Answers())).Msg("set submitted")
}

// Advance is the learner's "next": it moves on, or submits at the last item.
func (s *Set) Advance() {
	if !s.NextQuestion() {
		s.Submit()
	}
}

func (s *Set) Answers() []session.AnswerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []session.AnswerRecord
	for _, r := range s.responses {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (s *Set) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleaned {
		return
	}
	s.cleaned = true
	s.audioPlaying = false
}

// Respond records response for the current item, replacing any earlier one.
// In retake mode it records the retake answer instead.
func (s *Set) Respond(response string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items == nil {
		return ErrNotReady
	}
	if s.retake != nil {
		if s.retake.WasCorrect {
			return ErrLocked
		}
		a := s.grade(s.idx, response)
		s.retakeAnswer = &a
		return nil
	}
	if s.submitted {
		return ErrSubmitted
	}
	a := s.grade(s.idx, response)
	s.responses[s.idx] = &a
	return nil
}

// RespondOption answers the current item with its i-th option.
func (s *Set) RespondOption(i int) error {
	s.mu.Lock()
	if s.items == nil {
		s.mu.Unlock()
		return ErrNotReady
	}
	opts := s.items[s.idx].Options
	s.mu.Unlock()

	if i < 0 || i >= len(opts) {
		return fmt.Errorf("option %d of %d: %w", i+1, len(opts), ErrOptionRange)
	}
	return s.Respond(opts[i])
}

func (s *Set) grade(idx int, response string) session.AnswerRecord {
	it := s.items[idx]
	a := session.AnswerRecord{
		QuestionID: it.ID,
		Response:   response,
		Meta: map[string]string{
			"type":                s.spec.Type,
			"setId":               strconv.Itoa(s.spec.SetID),
			session.MetaItemIndex: strconv.Itoa(idx),
		},
	}
	switch {
	case it.FreeText():
		a.Meta["graded"] = "false"
	case it.Answer != "":
		a.Correct = matches(response, it.Answer)
	}
	return a
}

// PlayAudio starts a replay of the set's audio. The question countdown is
// paused until AudioFinished.
func (s *Set) PlayAudio() error {
	if !s.profile.Audio {
		return ErrNoAudio
	}
	s.mu.Lock()
	if s.audioPlaying || s.submitted {
		s.mu.Unlock()
		return nil
	}
	s.audioPlaying = true
	s.mu.Unlock()

	s.host.PauseQuestionTimer()
	return nil
}

// AudioFinished ends a replay started by PlayAudio.
func (s *Set) AudioFinished() {
	s.mu.Lock()
	if !s.audioPlaying {
		s.mu.Unlock()
		return
	}
	s.audioPlaying = false
	s.mu.Unlock()

	s.host.ResumeQuestionTimer()
}

func (s *Set) InitRetakeMode(ctx context.Context, item session.RetakeItem) error {
	s.mu.Lock()
	loaded := s.items != nil
	s.mu.Unlock()
	if !loaded {
		if err := s.load(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if item.InternalIndex < 0 || item.InternalIndex >= len(s.items) {
		return fmt.Errorf("item %d of %s set %d: %w", item.InternalIndex, s.spec.Type, s.spec.SetID, ErrRetakeItemRange)
	}
	s.idx = item.InternalIndex
	s.retake = &item
	s.retakeAnswer = nil
	s.audioPlaying = false
	return nil
}

func (s *Set) RetakeAnswer() (session.AnswerRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retakeAnswer == nil {
		return session.AnswerRecord{}, false
	}
	return *s.retakeAnswer, true
}

// Profile returns the set's presentation profile.
func (s *Set) Profile() Profile {
	return s.profile
}

// Prompt is a render-ready snapshot of the set.
type Prompt struct {
	Type    string
	Title   string
	Passage string
	Block   bool
	Audio   bool

	// Number is the global question number of the current item.
	Number int
	Index  int
	Count  int
	Item   Item

	Response     string
	Responses    []string // per item, for block sets
	AudioPlaying bool
	Submitted    bool

	Retake        bool
	FirstResponse string
	WasCorrect    bool
}

// View returns the current prompt. ok is false until the set is loaded.
func (s *Set) View() (p Prompt, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items == nil {
		return Prompt{}, false
	}

	p = Prompt{
		Type:         s.spec.Type,
		Title:        s.data.Title,
		Passage:      s.data.Passage,
		Block:        s.profile.Block,
		Audio:        s.profile.Audio,
		Number:       s.opts.StartQuestionNumber + s.idx,
		Index:        s.idx,
		Count:        len(s.items),
		Item:         s.items[s.idx],
		AudioPlaying: s.audioPlaying,
		Submitted:    s.submitted,
	}
	if r := s.responses[s.idx]; r != nil {
		p.Response = r.Response
	}
	if s.profile.Block {
		p.Responses = make([]string, len(s.items))
		for i, r := range s.responses {
			if r != nil {
				p.Responses[i] = r.Response
			}
		}
	}
	if s.retake != nil {
		p.Retake = true
		p.FirstResponse = s.retake.FirstAnswer.Response
		p.WasCorrect = s.retake.WasCorrect
		p.Response = ""
		if s.retakeAnswer != nil {
			p.Response = s.retakeAnswer.Response
		}
	}
	return p, true
}
