package scraper

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/metro-catalog-scraper/internal/browser"
	"github.com/maltedev/metro-catalog-scraper/internal/models"
)

// LocalityState is a step of the delivery locality dialog.
type LocalityState int

const (
	StateIdle LocalityState = iota
	StateAddressPanelOpened
	StatePickupTabSelected
	StateCurrentSelectionCleared
	StateCityNameTyped
	StateCitySuggestionChosen
	StateSelectionConfirmed
	StateDone
)

func (s LocalityState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAddressPanelOpened:
		return "address_panel_opened"
	case StatePickupTabSelected:
		return "pickup_tab_selected"
	case StateCurrentSelectionCleared:
		return "current_selection_cleared"
	case StateCityNameTyped:
		return "city_name_typed"
	case StateCitySuggestionChosen:
		return "city_suggestion_chosen"
	case StateSelectionConfirmed:
		return "selection_confirmed"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// LocalitySettle holds the pauses the dialog needs after its asynchronous steps.
type LocalitySettle struct {
	CityTyped          time.Duration
	SuggestionChosen   time.Duration
	SelectionConfirmed time.Duration
}

type localityStep struct {
	to     LocalityState
	target browser.Locator
	typed  bool
	pause  time.Duration
}

// LocalitySelector drives the page's delivery dialog to a given city.
type LocalitySelector struct {
	settle LocalitySettle
	logger *slog.Logger
}

func NewLocalitySelector(settle LocalitySettle, logger *slog.Logger) *LocalitySelector {
	return &LocalitySelector{
		settle: settle,
		logger: logger.With("component", "locality"),
	}
}

func (s *LocalitySelector) steps() []localityStep {
	return []localityStep{
		{to: StateAddressPanelOpened, target: AddressPanelButton},
		{to: StatePickupTabSelected, target: PickupTab},
		{to: StateCurrentSelectionCleared, target: ResetSelectionLink},
		{to: StateCityNameTyped, target: CityInput, typed: true, pause: s.settle.CityTyped},
		{to: StateCitySuggestionChosen, target: FirstCitySuggestion, pause: s.settle.SuggestionChosen},
		{to: StateSelectionConfirmed, target: ConfirmButton, pause: s.settle.SelectionConfirmed},
	}
}

// Select walks the dialog from Idle to Done. Any failed step aborts with a
// *LocalityStepError naming the state that could not be reached.
func (s *LocalitySelector) Select(ctx context.Context, page browser.Page, locality models.Locality) error {
	if strings.TrimSpace(locality.Name) == "" {
		return ErrEmptyLocality
	}

	s.logger.Info("selecting delivery locality", "city", locality.Name)

	for _, step := range s.steps() {
		var err error
		if step.typed {
			err = page.Type(ctx, step.target, locality.Name)
		} else {
			err = page.Click(ctx, step.target)
		}
		if err != nil {
			return &LocalityStepError{State: step.to, Err: err}
		}

		s.logger.Debug("locality step completed", "city", locality.Name, "state", step.to)

		if err := settle(ctx, step.pause); err != nil {
			return err
		}
	}

	s.logger.Info("delivery locality selected", "city", locality.Name, "state", StateDone)
	return nil
}
