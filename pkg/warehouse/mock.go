package warehouse

import "context"

// MockExecutor is a configurable mock for testing query execution paths.
type MockExecutor struct {
	QueryFunc           func(ctx context.Context, sql string, maxRows int) (*ResultSet, error)
	DescribeColumnsFunc func(ctx context.Context, target string) ([]string, error)

	QueryCalls []string
}

// Query implements Executor.
func (m *MockExecutor) Query(ctx context.Context, sql string, maxRows int) (*ResultSet, error) {
	m.QueryCalls = append(m.QueryCalls, sql)
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, sql, maxRows)
	}
	return &ResultSet{}, nil
}

// DescribeColumns implements Executor.
func (m *MockExecutor) DescribeColumns(ctx context.Context, target string) ([]string, error) {
	if m.DescribeColumnsFunc != nil {
		return m.DescribeColumnsFunc(ctx, target)
	}
	return nil, nil
}

var _ Executor = (*MockExecutor)(nil)
