package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromNewParsesLastReview(t *testing.T) {
	t.Parallel()

	last := "2024/03/15"
	created := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	snap, err := FromNew("snap-1", NewSnapshot{
		Establishment: "Pizzaria Boa",
		City:          "sao paulo",
		State:         "SP",
		Platform:      "ifood",
		Link:          "https://www.ifood.com.br/delivery/sao-paulo-sp/pizzaria-boa/abc",
		Reviews:       120,
		ReviewsKnown:  true,
		LastReview:    &last,
	}, created)
	require.NoError(t, err)
	require.Equal(t, "snap-1", snap.ID)
	require.NotNil(t, snap.LastReview)
	require.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), *snap.LastReview)
	require.Equal(t, created, snap.CreatedAt)
}

func TestNewSnapshotValidate(t *testing.T) {
	t.Parallel()

	bad := "15/03/2024"
	tests := []struct {
		name string
		in   NewSnapshot
		want string
	}{
		{name: "missing name", in: NewSnapshot{Platform: "ifood"}, want: "establishment"},
		{name: "missing platform", in: NewSnapshot{Establishment: "x"}, want: "platform"},
		{name: "negative reviews", in: NewSnapshot{Establishment: "x", Platform: "ifood", Reviews: -1}, want: "reviews"},
		{
			name: "bad date",
			in:   NewSnapshot{Establishment: "x", Platform: "ifood", LastReview: &bad},
			want: "last_review",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.in.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseRunStatus(t *testing.T) {
	t.Parallel()

	got, err := ParseRunStatus("failed")
	require.NoError(t, err)
	require.Equal(t, RunError, got)

	_, err = ParseRunStatus("bogus")
	require.Error(t, err)
}
