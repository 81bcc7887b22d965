package session

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/abhisek/examrun/internal/module"
)

// RetakeItem is one previously answered question offered again.
type RetakeItem struct {
	ComponentIndex int
	Type           string
	SetID          int
	InternalIndex  int
	GlobalNumber   int
	WasCorrect     bool
	FirstAnswer    AnswerRecord
}

// RetakeOutcome pairs a retake item with the answer given during review.
type RetakeOutcome struct {
	RetakeItem
	Retake  AnswerRecord
	Retaken bool
}

// RetakeResult is the outcome of a review pass. It never alters the
// first-attempt ModuleResult it was derived from.
type RetakeResult struct {
	SessionID string
	ModuleID  string
	Outcomes  []RetakeOutcome
}

// Improved counts items that were wrong on the first attempt and right on
// the retake.
func (r *RetakeResult) Improved() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.WasCorrect && o.Retaken && o.Retake.Correct {
			n++
		}
	}
	return n
}

// Prefetcher warms the data of components ahead of review so jumping
// between them does not block on a slow load.
type Prefetcher interface {
	Prefetch(ctx context.Context, specs []module.ComponentSpec) error
}

// CoordinatorConfig configures a retake pass.
type CoordinatorConfig struct {
	Registry Registry
	Logger   zerolog.Logger

	// OnlyIncorrect restricts the pass to items answered wrongly.
	OnlyIncorrect bool

	// Prefetcher, when set, is run concurrently by StartPrefetch.
	Prefetcher Prefetcher
}

// Coordinator walks a finished attempt item by item in retake mode. It is
// self-paced: there are no timers and no progress numbering, the caller
// advances with Next. Not safe for concurrent use.
type Coordinator struct {
	desc  *module.Descriptor
	first ModuleResult
	cfg   CoordinatorConfig
	log   zerolog.Logger

	items    []RetakeItem
	outcomes []RetakeOutcome

	pos       int // index into items, -1 before the first Next
	compIndex int
	comp      Component
	finished  bool
}

// NewCoordinator plans a retake of first, which must have been produced from
// desc.
func NewCoordinator(desc *module.Descriptor, first ModuleResult, cfg CoordinatorConfig) (*Coordinator, error) {
	if first.ModuleID != desc.ModuleID {
		return nil, fmt.Errorf("result for module %q cannot be retaken against %q", first.ModuleID, desc.ModuleID)
	}

	c := &Coordinator{
		desc:      desc,
		first:     first.Clone(),
		cfg:       cfg,
		log:       cfg.Logger.With().Str("component", "retake").Str("session_id", first.SessionID).Logger(),
		pos:       -1,
		compIndex: -1,
	}
	c.items = c.plan()
	if len(c.items) == 0 {
		return nil, ErrNothingToRetake
	}
	return c, nil
}

func (c *Coordinator) plan() []RetakeItem {
	var items []RetakeItem
	for _, cr := range c.first.ComponentResults {
		if cr.Index < 0 || cr.Index >= len(c.desc.Components) {
			c.log.Warn().Int("index", cr.Index).Msg("component result outside descriptor, ignoring")
			continue
		}
		spec := c.desc.Components[cr.Index]
		if spec.Type != cr.Type || spec.SetID != cr.SetID {
			c.log.Warn().Int("index", cr.Index).Str("type", cr.Type).Msg("component result does not match descriptor, ignoring")
			continue
		}
		if _, ok := c.cfg.Registry.Lookup(spec.Type); !ok {
			c.log.Error().Str("type", spec.Type).Msg("unknown component type in retake, skipping")
			continue
		}
		start := c.desc.StartQuestionNumber(cr.Index)
		for i, a := range cr.Answers {
			if c.cfg.OnlyIncorrect && a.Correct {
				continue
			}
			idx := a.ItemIndex(i)
			if idx >= spec.QuestionsPerSet {
				c.log.Warn().Int("index", cr.Index).Int("item", idx).Msg("answer outside component, ignoring")
				continue
			}
			items = append(items, RetakeItem{
				ComponentIndex: cr.Index,
				Type:           spec.Type,
				SetID:          spec.SetID,
				InternalIndex:  idx,
				GlobalNumber:   start + idx,
				WasCorrect:     a.Correct,
				FirstAnswer:    a,
			})
		}
	}
	return items
}

// Items returns the planned review items.
func (c *Coordinator) Items() []RetakeItem {
	return append([]RetakeItem(nil), c.items...)
}

// StartPrefetch warms every component involved in the pass on a separate
// goroutine. The returned channel yields the prefetch error (or nil) once.
func (c *Coordinator) StartPrefetch(ctx context.Context) <-chan error {
	out := make(chan error, 1)
	if c.cfg.Prefetcher == nil {
		out <- nil
		return out
	}

	var specs []module.ComponentSpec
	seen := make(map[int]bool)
	for _, it := range c.items {
		if !seen[it.ComponentIndex] {
			seen[it.ComponentIndex] = true
			specs = append(specs, c.desc.Components[it.ComponentIndex])
		}
	}

	go func() {
		err := c.cfg.Prefetcher.Prefetch(ctx, specs)
		if err != nil {
			c.log.Warn().Err(err).Msg("prefetch failed")
		}
		out <- err
	}()
	return out
}

// Current returns the item under review and the component presenting it.
func (c *Coordinator) Current() (RetakeItem, Component, bool) {
	if c.pos < 0 || c.pos >= len(c.items) || c.finished {
		return RetakeItem{}, nil, false
	}
	return c.items[c.pos], c.comp, true
}

// Position returns the 1-based position of the current item and the number
// of items in the pass.
func (c *Coordinator) Position() (int, int) {
	return c.pos + 1, len(c.items)
}

// Next records the answer given for the current item and presents the next
// one. It returns ErrRetakeDone after the last item.
func (c *Coordinator) Next(ctx context.Context) (RetakeItem, Component, error) {
	if c.finished {
		return RetakeItem{}, nil, ErrRetakeDone
	}
	c.collect()

	c.pos++
	if c.pos >= len(c.items) {
		c.release()
		c.finished = true
		return RetakeItem{}, nil, ErrRetakeDone
	}

	item := c.items[c.pos]
	if item.ComponentIndex != c.compIndex {
		if err := c.switchComponent(item); err != nil {
			return item, nil, err
		}
	}
	if err := c.comp.InitRetakeMode(ctx, item); err != nil {
		return item, c.comp, fmt.Errorf("init retake for question %d: %w", item.GlobalNumber, err)
	}
	return item, c.comp, nil
}

// Finish records the current item's answer, releases the live component and
// returns the pass result.
func (c *Coordinator) Finish() RetakeResult {
	if !c.finished {
		c.collect()
		c.release()
		c.finished = true
	}
	outcomes := make([]RetakeOutcome, len(c.outcomes))
	copy(outcomes, c.outcomes)
	return RetakeResult{
		SessionID: c.first.SessionID,
		ModuleID:  c.first.ModuleID,
		Outcomes:  outcomes,
	}
}

func (c *Coordinator) collect() {
	if c.pos < 0 || c.pos >= len(c.items) {
		return
	}
	out := RetakeOutcome{RetakeItem: c.items[c.pos]}
	if c.comp != nil && !out.WasCorrect {
		if a, ok := c.comp.RetakeAnswer(); ok {
			out.Retake = a
			out.Retaken = true
		}
	}
	c.outcomes = append(c.outcomes, out)
}

func (c *Coordinator) switchComponent(item RetakeItem) error {
	c.release()

	spec := c.desc.Components[item.ComponentIndex]
	factory, ok := c.cfg.Registry.Lookup(spec.Type)
	if !ok {
		return fmt.Errorf("no factory for component type %q", spec.Type)
	}
	comp, err := factory(spec, NopHost{}, Options{
		StartQuestionNumber:  c.desc.StartQuestionNumber(item.ComponentIndex),
		TotalModuleQuestions: c.desc.TotalQuestions,
		QuestionsPerSet:      spec.QuestionsPerSet,
		SectionKind:          c.desc.SectionKind,
		Retake:               true,
	})
	if err != nil {
		return fmt.Errorf("construct %s component: %w", spec.Type, err)
	}
	c.comp = comp
	c.compIndex = item.ComponentIndex
	c.log.Debug().Int("index", item.ComponentIndex).Str("type", spec.Type).Msg("retake component switched")
	return nil
}

func (c *Coordinator) release() {
	if c.comp != nil {
		c.comp.Cleanup()
		c.comp = nil
		c.compIndex = -1
	}
}
