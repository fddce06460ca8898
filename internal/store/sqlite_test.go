package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/survey-runner/backend/internal/model/survey"
)

func openTestStore(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "survey.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// failOnQuestion makes every insert of question abort.
func failOnQuestion(t *testing.T, s *SQLiteStore, question string) {
	t.Helper()
	_, err := s.DB().Exec(`CREATE TRIGGER fail_insert BEFORE INSERT ON surveyResp
		WHEN NEW.question = '` + question + `'
		BEGIN SELECT RAISE(ABORT, 'insert rejected'); END`)
	require.NoError(t, err)
}

func TestSaveResponsesInsertsRowsInOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	responses := survey.Responses{
		{Question: "q1", Response: `"yes"`},
		{Question: "q2", Response: `"no"`},
	}
	require.NoError(t, s.SaveResponses(ctx, "s-1", responses))

	rows, err := s.ListResponses(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "q1", rows[0].Question)
	require.Equal(t, `"yes"`, rows[0].Response)
	require.Equal(t, "q2", rows[1].Question)
	require.Equal(t, `"no"`, rows[1].Response)
	require.Equal(t, "s-1", rows[1].SessionID)
	require.False(t, rows[0].CreatedAt.IsZero())
}

func TestSaveResponsesPartialKeepsEarlierRows(t *testing.T) {
	s := openTestStore(t, WithAtomic(false))
	failOnQuestion(t, s, "q2")
	ctx := context.Background()

	err := s.SaveResponses(ctx, "", survey.Responses{
		{Question: "q1", Response: `"yes"`},
		{Question: "q2", Response: `"no"`},
	})
	var serr *StoreError
	require.True(t, errors.As(err, &serr))
	require.Equal(t, "q2", serr.Question)

	rows, err := s.ListResponses(ctx, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "q1", rows[0].Question)
}

func TestSaveResponsesAtomicRollsBack(t *testing.T) {
	s := openTestStore(t, WithAtomic(true))
	failOnQuestion(t, s, "q2")
	ctx := context.Background()

	err := s.SaveResponses(ctx, "", survey.Responses{
		{Question: "q1", Response: `"yes"`},
		{Question: "q2", Response: `"no"`},
	})
	require.Error(t, err)

	rows, err := s.ListResponses(ctx, "")
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestTrialsFallBackToDefault(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	trials, err := s.Trials(ctx, "anyone")
	require.NoError(t, err)
	require.Empty(t, trials)

	require.NoError(t, s.SeedTrials(ctx, DefaultTrialSet, Seed()))
	require.NoError(t, s.SeedTrials(ctx, "s-2", []survey.Page{survey.Page(`{"name":"only"}`)}))

	trials, err = s.Trials(ctx, "anyone")
	require.NoError(t, err)
	require.Len(t, trials, len(Seed()))
	require.JSONEq(t, string(Seed()[0]), trials[0].JSON)

	trials, err = s.Trials(ctx, "s-2")
	require.NoError(t, err)
	require.Len(t, trials, 1)
	require.JSONEq(t, `{"name":"only"}`, trials[0].JSON)
}

func TestSeedTrialsReplacesAndValidates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SeedTrials(ctx, "s", []survey.Page{survey.Page(`{"a":1}`), survey.Page(`{"a":2}`)}))
	require.NoError(t, s.SeedTrials(ctx, "s", []survey.Page{survey.Page(`{"a":3}`)}))

	trials, err := s.Trials(ctx, "s")
	require.NoError(t, err)
	require.Len(t, trials, 1)

	err = s.SeedTrials(ctx, "s", []survey.Page{survey.Page(`{"a":`)})
	require.ErrorIs(t, err, survey.ErrInvalidPage)

	trials, err = s.Trials(ctx, "s")
	require.NoError(t, err)
	require.Len(t, trials, 1)
}
