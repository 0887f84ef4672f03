// Package workflow drives a wishlist submission through its steps.
//
// The current mode is a single State value. Transition is the only way to
// move between states; the Controller wraps it with the network calls,
// caching and validation each step needs.
package workflow

import (
	"errors"
	"fmt"

	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

// Step names the visible form step.
type Step string

const (
	StepAuth     Step = "auth"
	StepRepo     Step = "repo"
	StepWishlist Step = "wishlist"
	StepSuccess  Step = "success"
)

// State is one of AuthState, RepoState, WishlistState or SuccessState.
type State interface {
	Step() Step
	isState()
}

// AuthState lists the user's repositories. Selected is the repository picked
// but not yet confirmed with continue.
type AuthState struct {
	Selected *wishlist.RepositoryCandidate
}

// RepoState confirms the bound repository before the form is shown.
type RepoState struct {
	Repo   wishlist.RepositoryCandidate
	Manual bool
}

// Action is what the user chose to do with an existing wishlist.
type Action string

const (
	ActionEdit  Action = "edit"
	ActionClose Action = "close"
)

// EditTarget marks a WishlistState as working on a stored wishlist.
type EditTarget struct {
	IssueNumber int
	IssueURL    string
	Action      Action
}

// WishlistState shows the form. Editing is nil when creating.
type WishlistState struct {
	Repo    wishlist.RepositoryCandidate
	Manual  bool
	Editing *EditTarget
}

// OutcomeKind classifies a completed action.
type OutcomeKind string

const (
	OutcomeCreated OutcomeKind = "created"
	OutcomeUpdated OutcomeKind = "updated"
	OutcomeClosed  OutcomeKind = "closed"
)

// Outcome describes a completed submission or close.
type Outcome struct {
	Kind        OutcomeKind
	IssueNumber int
	IssueURL    string
	Title       string
	RedirectURL string
}

// SuccessState overlays a confirmation until the user dismisses it.
// Return is the state shown after dismissal.
type SuccessState struct {
	Outcome Outcome
	Return  State
}

func (AuthState) Step() Step     { return StepAuth }
func (RepoState) Step() Step     { return StepRepo }
func (WishlistState) Step() Step { return StepWishlist }
func (SuccessState) Step() Step  { return StepSuccess }

func (AuthState) isState()     {}
func (RepoState) isState()     {}
func (WishlistState) isState() {}
func (SuccessState) isState()  {}

// Event is an input to Transition.
type Event interface {
	isEvent()
}

// RepositorySelected picks a provider repository on the auth step.
type RepositorySelected struct{ Repo wishlist.RepositoryCandidate }

// RepositoryContinued confirms the selected provider repository.
type RepositoryContinued struct{}

// ManualURLSubmitted binds a manually entered repository. The URL must
// already have passed validation.
type ManualURLSubmitted struct{ Repo wishlist.RepositoryCandidate }

// Proceeded moves from the repository step to the form.
type Proceeded struct{}

// ExistingChosen opens a repository's existing wishlist for edit or close.
type ExistingChosen struct {
	Repo wishlist.RepositoryCandidate
	Ref  wishlist.ExistingWishlistRef
	Act  Action
}

// Hydrated binds the repository of a loaded wishlist to the edit form.
type Hydrated struct{ Repo wishlist.RepositoryCandidate }

// Submitted records a successful create or update.
type Submitted struct{ Outcome Outcome }

// Closed records a successful close.
type Closed struct{ Outcome Outcome }

// Dismissed hides the success overlay.
type Dismissed struct{}

// BackToWishlists returns to the repository list.
type BackToWishlists struct{}

// LoggedOut resets to the auth step.
type LoggedOut struct{}

func (RepositorySelected) isEvent()  {}
func (RepositoryContinued) isEvent() {}
func (ManualURLSubmitted) isEvent()  {}
func (Proceeded) isEvent()           {}
func (ExistingChosen) isEvent()      {}
func (Hydrated) isEvent()            {}
func (Submitted) isEvent()           {}
func (Closed) isEvent()              {}
func (Dismissed) isEvent()           {}
func (BackToWishlists) isEvent()     {}
func (LoggedOut) isEvent()           {}

// Guards carries the facts transitions depend on besides the state itself.
type Guards struct {
	Authenticated bool
}

var (
	// ErrInvalidTransition is returned for an event the current state does not accept.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrSignInRequired is returned when leaving auth needs an authenticated user.
	ErrSignInRequired = errors.New("sign in required")
)

func invalid(s State, e Event) error {
	return fmt.Errorf("%w: %T in %s", ErrInvalidTransition, e, s.Step())
}

// Initial returns the starting state. A positive deepLink opens that wishlist
// for editing directly.
func Initial(deepLink int) State {
	if deepLink > 0 {
		return WishlistState{Editing: &EditTarget{IssueNumber: deepLink, Action: ActionEdit}}
	}
	return AuthState{}
}

// Transition applies e to s. It never mutates s; on error s stays current.
func Transition(s State, e Event, g Guards) (State, error) {
	// Events accepted in every state
	switch ev := e.(type) {
	case LoggedOut:
		return AuthState{}, nil
	case Dismissed:
		if succ, ok := s.(SuccessState); ok {
			return succ.Return, nil
		}
		return nil, invalid(s, e)
	case BackToWishlists:
		switch s.(type) {
		case SuccessState, WishlistState, RepoState:
			return AuthState{}, nil
		}
		return nil, invalid(s, e)
	case Closed:
		switch cur := s.(type) {
		case AuthState:
			return SuccessState{Outcome: ev.Outcome, Return: cur}, nil
		case WishlistState:
			return SuccessState{Outcome: ev.Outcome, Return: AuthState{}}, nil
		case SuccessState:
			if _, ok := cur.Return.(AuthState); ok {
				return SuccessState{Outcome: ev.Outcome, Return: cur.Return}, nil
			}
		}
		return nil, invalid(s, e)
	}

	switch cur := s.(type) {
	case AuthState:
		switch ev := e.(type) {
		case RepositorySelected:
			repo := ev.Repo
			return AuthState{Selected: &repo}, nil
		case RepositoryContinued:
			if !g.Authenticated {
				return nil, ErrSignInRequired
			}
			if cur.Selected == nil {
				return nil, fmt.Errorf("%w: no repository selected", ErrInvalidTransition)
			}
			return RepoState{Repo: *cur.Selected}, nil
		case ManualURLSubmitted:
			if ev.Repo.URL == "" {
				return nil, fmt.Errorf("%w: manual repository has no URL", ErrInvalidTransition)
			}
			return RepoState{Repo: ev.Repo, Manual: true}, nil
		case ExistingChosen:
			if !g.Authenticated {
				return nil, ErrSignInRequired
			}
			return WishlistState{
				Repo: ev.Repo,
				Editing: &EditTarget{
					IssueNumber: ev.Ref.IssueNumber,
					IssueURL:    ev.Ref.IssueURL,
					Action:      ev.Act,
				},
			}, nil
		}

	case RepoState:
		if _, ok := e.(Proceeded); ok {
			if cur.Repo.URL == "" {
				return nil, fmt.Errorf("%w: no repository bound", ErrInvalidTransition)
			}
			return WishlistState{Repo: cur.Repo, Manual: cur.Manual}, nil
		}

	case WishlistState:
		switch ev := e.(type) {
		case Hydrated:
			if cur.Editing == nil {
				return nil, invalid(s, e)
			}
			next := cur
			next.Repo = ev.Repo
			return next, nil
		case Submitted:
			return SuccessState{Outcome: ev.Outcome, Return: AuthState{}}, nil
		}
	}

	return nil, invalid(s, e)
}
