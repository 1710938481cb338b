package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mra/internal/domain"
)

func TestResolveExecutionOrder(t *testing.T) {
	tests := []struct {
		name       string
		jobs       []Job
		wantLevels [][]string
		wantErr    string
	}{
		{
			name:       "single_job_no_deps",
			jobs:       []Job{{Name: "cube"}},
			wantLevels: [][]string{{"cube"}},
		},
		{
			name: "linear_chain",
			jobs: []Job{
				{Name: "C", DependsOn: []string{"B"}},
				{Name: "A"},
				{Name: "B", DependsOn: []string{"A"}},
			},
			wantLevels: [][]string{{"A"}, {"B"}, {"C"}},
		},
		{
			name: "diamond_dependency",
			jobs: []Job{
				{Name: "cube"},
				{Name: "by-day", DependsOn: []string{"cube"}},
				{Name: "by-device", DependsOn: []string{"cube"}},
				{Name: "report", DependsOn: []string{"by-device", "by-day"}},
			},
			wantLevels: [][]string{{"cube"}, {"by-day", "by-device"}, {"report"}},
		},
		{
			name:       "parallel_independent_jobs_sorted",
			jobs:       []Job{{Name: "c"}, {Name: "a"}, {Name: "b"}},
			wantLevels: [][]string{{"a", "b", "c"}},
		},
		{
			name: "cycle_detected",
			jobs: []Job{
				{Name: "A", DependsOn: []string{"B"}},
				{Name: "B", DependsOn: []string{"A"}},
			},
			wantErr: "cycle detected",
		},
		{
			name:    "unknown_dependency",
			jobs:    []Job{{Name: "A", DependsOn: []string{"nonexistent"}}},
			wantErr: "unknown dependency: nonexistent",
		},
		{
			name:    "self_dependency",
			jobs:    []Job{{Name: "A", DependsOn: []string{"A"}}},
			wantErr: "self dependency: A",
		},
		{
			name:    "duplicate_name",
			jobs:    []Job{{Name: "A"}, {Name: "A"}},
			wantErr: "duplicate job name: A",
		},
		{
			name:    "empty_name",
			jobs:    []Job{{}},
			wantErr: "must not be empty",
		},
		{
			name: "empty_jobs",
			jobs: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			levels, err := ResolveExecutionOrder(tt.jobs)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, domain.IsKind(err, domain.KindInvalidSchema))
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevels, levels)
		})
	}
}
