package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oss-wishlist/wishlist/internal/wishlist"
)

var testRepo = wishlist.RepositoryCandidate{Name: "widget", URL: "https://github.com/acme/widget", Owner: "acme"}

func TestInitial(t *testing.T) {
	assert.Equal(t, AuthState{}, Initial(0))

	s := Initial(42)
	ws, ok := s.(WishlistState)
	require.True(t, ok)
	require.NotNil(t, ws.Editing)
	assert.Equal(t, 42, ws.Editing.IssueNumber)
	assert.Equal(t, ActionEdit, ws.Editing.Action)
}

func TestTransition_HappyPath(t *testing.T) {
	g := Guards{Authenticated: true}

	s, err := Transition(AuthState{}, RepositorySelected{Repo: testRepo}, g)
	require.NoError(t, err)
	s, err = Transition(s, RepositoryContinued{}, g)
	require.NoError(t, err)
	assert.Equal(t, RepoState{Repo: testRepo}, s)

	s, err = Transition(s, Proceeded{}, g)
	require.NoError(t, err)
	assert.Equal(t, WishlistState{Repo: testRepo}, s)

	s, err = Transition(s, Submitted{Outcome: Outcome{Kind: OutcomeCreated, IssueNumber: 1}}, g)
	require.NoError(t, err)
	succ, ok := s.(SuccessState)
	require.True(t, ok)
	assert.Equal(t, AuthState{}, succ.Return)

	// The overlay stays until dismissed
	s, err = Transition(s, Dismissed{}, g)
	require.NoError(t, err)
	assert.Equal(t, StepAuth, s.Step())
}

func TestTransition_SignInGuard(t *testing.T) {
	anon := Guards{}

	s, err := Transition(AuthState{}, RepositorySelected{Repo: testRepo}, anon)
	require.NoError(t, err)
	_, err = Transition(s, RepositoryContinued{}, anon)
	assert.ErrorIs(t, err, ErrSignInRequired)

	_, err = Transition(AuthState{}, ExistingChosen{Repo: testRepo, Act: ActionEdit}, anon)
	assert.ErrorIs(t, err, ErrSignInRequired)

	// Manual repository data is enough without signing in
	s, err = Transition(AuthState{}, ManualURLSubmitted{Repo: testRepo}, anon)
	require.NoError(t, err)
	assert.Equal(t, RepoState{Repo: testRepo, Manual: true}, s)
}

func TestTransition_ExistingChosen(t *testing.T) {
	ref := wishlist.ExistingWishlistRef{IssueNumber: 7, IssueURL: "https://wl.example/wishlists/7"}
	s, err := Transition(AuthState{}, ExistingChosen{Repo: testRepo, Ref: ref, Act: ActionClose}, Guards{Authenticated: true})
	require.NoError(t, err)
	ws := s.(WishlistState)
	assert.Equal(t, &EditTarget{IssueNumber: 7, IssueURL: ref.IssueURL, Action: ActionClose}, ws.Editing)
}

func TestTransition_Closed(t *testing.T) {
	out := Outcome{Kind: OutcomeClosed, IssueNumber: 3}
	sel := testRepo

	// From the list the overlay returns to the same list
	s, err := Transition(AuthState{Selected: &sel}, Closed{Outcome: out}, Guards{})
	require.NoError(t, err)
	assert.Equal(t, AuthState{Selected: &sel}, s.(SuccessState).Return)

	// From the form it returns to the list
	s, err = Transition(WishlistState{Editing: &EditTarget{IssueNumber: 3}}, Closed{Outcome: out}, Guards{})
	require.NoError(t, err)
	assert.Equal(t, AuthState{}, s.(SuccessState).Return)

	// Another close behind the list's overlay replaces the outcome
	next := Outcome{Kind: OutcomeClosed, IssueNumber: 4}
	s, err = Transition(SuccessState{Outcome: out, Return: AuthState{Selected: &sel}}, Closed{Outcome: next}, Guards{})
	require.NoError(t, err)
	assert.Equal(t, SuccessState{Outcome: next, Return: AuthState{Selected: &sel}}, s)

	// but not behind a form's overlay
	_, err = Transition(SuccessState{Outcome: out, Return: WishlistState{}}, Closed{Outcome: next}, Guards{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransition_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		state State
		event Event
	}{
		{"proceed from auth", AuthState{}, Proceeded{}},
		{"continue without selection", AuthState{}, RepositoryContinued{}},
		{"submit from repo", RepoState{Repo: testRepo}, Submitted{}},
		{"dismiss without overlay", AuthState{}, Dismissed{}},
		{"hydrate while creating", WishlistState{Repo: testRepo}, Hydrated{Repo: testRepo}},
		{"back from auth", AuthState{}, BackToWishlists{}},
		{"manual without url", AuthState{}, ManualURLSubmitted{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Transition(tt.state, tt.event, Guards{Authenticated: true})
			assert.True(t, errors.Is(err, ErrInvalidTransition), "err = %v", err)
		})
	}
}

func TestTransition_LoggedOutFromAnywhere(t *testing.T) {
	for _, s := range []State{AuthState{}, RepoState{}, WishlistState{}, SuccessState{Return: AuthState{}}} {
		next, err := Transition(s, LoggedOut{}, Guards{})
		require.NoError(t, err)
		assert.Equal(t, AuthState{}, next)
	}
}
