package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/ownership-cli/internal/runlog"
)

// --- Recorder Mock ---

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) Start(ctx context.Context, stage string) (int64, error) {
	args := m.Called(ctx, stage)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRecorder) Complete(ctx context.Context, id int64, res *runlog.Result) error {
	args := m.Called(ctx, id, res)
	return args.Error(0)
}

func (m *mockRecorder) Fail(ctx context.Context, id int64, msg string) error {
	args := m.Called(ctx, id, msg)
	return args.Error(0)
}
