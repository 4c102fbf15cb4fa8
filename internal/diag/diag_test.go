package diag

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wang-russell/rsm/internal/rsmerrors"
)

func TestQuery_UnknownSubjectIsNotFound(t *testing.T) {
	r := New()
	_, err := r.Query("task")
	require.Error(t, err)
	require.True(t, rsmerrors.IsCode(err, rsmerrors.NotFound))
}

func TestRegisterAndQuery(t *testing.T) {
	r := New()
	r.Register("task", func() (interface{}, error) {
		return map[string]int{"count": 3}, nil
	})

	raw, err := r.Query("task")
	require.NoError(t, err)

	var got map[string]int
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, 3, got["count"])
}

func TestUnregister(t *testing.T) {
	r := New()
	r.Register("timer", func() (interface{}, error) { return 1, nil })
	require.Contains(t, r.Names(), "timer")

	r.Unregister("timer")
	require.NotContains(t, r.Names(), "timer")
}

func TestQueryAll_SkipsFailingSubjects(t *testing.T) {
	r := New()
	r.Register("good", func() (interface{}, error) { return "ok", nil })
	r.Register("bad", func() (interface{}, error) { return nil, errors.New("boom") })

	all := r.QueryAll()
	require.Contains(t, all, "good")
	require.NotContains(t, all, "bad")
}

func TestNames_Sorted(t *testing.T) {
	r := New()
	r.Register("zeta", func() (interface{}, error) { return nil, nil })
	r.Register("alpha", func() (interface{}, error) { return nil, nil })

	require.Equal(t, []string{"alpha", "zeta"}, r.Names())
}
