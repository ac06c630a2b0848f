package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veranemoloko/impex-tasks/internal/dispatch"
	"github.com/veranemoloko/impex-tasks/internal/domain"
	errpkg "github.com/veranemoloko/impex-tasks/internal/errors"
	"github.com/veranemoloko/impex-tasks/internal/remote"
	"github.com/veranemoloko/impex-tasks/internal/repository"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, cmd domain.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeDispatcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeResolver struct {
	mu      sync.Mutex
	url     string
	params  domain.RemoteTransferParams
	status  domain.TaskStatus
	found   bool
	err     error
	calls   atomic.Int32
	release chan struct{}
}

func (f *fakeResolver) FetchStatus(ctx context.Context, url string, parentID int64, p domain.RemoteTransferParams) (domain.TaskStatus, bool, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
	f.mu.Lock()
	f.url, f.params = url, p
	f.mu.Unlock()
	return f.status, f.found, f.err
}

type failingStore struct {
	repository.TaskStore
	err error
}

func (f *failingStore) GetByID(ctx context.Context, id int64) (*domain.Task, error) {
	return nil, f.err
}

func (f *failingStore) GetRawParams(ctx context.Context, id int64) ([]byte, error) {
	return nil, f.err
}

func newTestService(t *testing.T, d dispatch.WorkerDispatcher, r StatusResolver) (*TaskService, *repository.TaskStorage) {
	t.Helper()
	store, err := repository.NewTaskStorage("")
	require.NoError(t, err)
	return NewTaskService(store, d, r, newTestLogger()), store
}

func int64Ptr(v int64) *int64 { return &v }

func TestCreateTask_UnsupportedType(t *testing.T) {
	d := &fakeDispatcher{}
	svc, store := newTestService(t, d, &fakeResolver{})
	ctx := context.Background()

	for _, typ := range []string{"", "archive", "EXPORT"} {
		id, err := svc.CreateTask(ctx, typ, nil, nil)
		assert.ErrorIs(t, err, errpkg.ErrUnsupportedTaskType, typ)
		assert.Zero(t, id)
	}

	_, err := store.GetByID(ctx, 1)
	assert.ErrorIs(t, err, errpkg.ErrTaskNotFound)
	assert.Zero(t, d.Calls())
}

func TestCreateTask_InsertsAndDispatches(t *testing.T) {
	d := &fakeDispatcher{}
	svc, _ := newTestService(t, d, &fakeResolver{})
	ctx := context.Background()

	id, err := svc.CreateTask(ctx, "export", domain.Params{"a": 1, "b": "x"}, int64Ptr(3))
	require.NoError(t, err)
	assert.Equal(t, 1, d.Calls())

	task, err := svc.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskTypeExport, task.Type)
	assert.Equal(t, domain.TaskStatusPending, task.Status)
	assert.Equal(t, domain.Params{"a": float64(1), "b": "x"}, task.Params)
	require.NotNil(t, task.ParentID)
	assert.Equal(t, int64(3), *task.ParentID)
}

func TestCreateTask_DispatchFailureLeavesPendingRow(t *testing.T) {
	cause := errors.New("redis down")
	svc, _ := newTestService(t, &fakeDispatcher{err: cause}, &fakeResolver{})
	ctx := context.Background()

	id, err := svc.CreateTask(ctx, "import", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errpkg.ErrDispatchFailure)
	assert.ErrorIs(t, err, cause)

	var de *errpkg.DispatchError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, id, de.TaskID)
	assert.NotZero(t, id)

	status, found, err := svc.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domain.TaskStatusPending, status)
}

func TestCreateTask_InvalidRemoteTransferParams(t *testing.T) {
	d := &fakeDispatcher{}
	svc, _ := newTestService(t, d, &fakeResolver{})

	_, err := svc.CreateTask(context.Background(), "export", domain.Params{"http_port": "99999"}, nil)
	assert.ErrorIs(t, err, errpkg.ErrInvalidParams)

	_, err = svc.CreateTask(context.Background(), "export", domain.Params{"no_proxy": "maybe"}, nil)
	assert.ErrorIs(t, err, errpkg.ErrInvalidParams)
	assert.Zero(t, d.Calls())
}

func TestCreateTask_CanceledContext(t *testing.T) {
	d := dispatch.NewMemoryDispatcher(1)
	svc, _ := newTestService(t, d, &fakeResolver{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.CreateTask(ctx, "export", nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, d.C(), 0)
}

func TestRedispatch(t *testing.T) {
	d := &fakeDispatcher{}
	svc, _ := newTestService(t, d, &fakeResolver{})

	require.NoError(t, svc.Redispatch(context.Background()))
	assert.Equal(t, 1, d.Calls())

	d.err = errpkg.ErrQueueFull
	err := svc.Redispatch(context.Background())
	assert.ErrorIs(t, err, errpkg.ErrDispatchFailure)
	assert.ErrorIs(t, err, errpkg.ErrQueueFull)
}

func TestGetStatus(t *testing.T) {
	svc, _ := newTestService(t, &fakeDispatcher{}, &fakeResolver{})
	ctx := context.Background()

	status, found, err := svc.GetStatus(ctx, 99)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, status)

	id, err := svc.CreateTask(ctx, "export", nil, nil)
	require.NoError(t, err)

	first, found1, err := svc.GetStatus(ctx, id)
	require.NoError(t, err)
	second, found2, err := svc.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.True(t, found1)
	assert.True(t, found2)
	assert.Equal(t, first, second)
}

func TestGetStatus_StoreFaultPropagates(t *testing.T) {
	fault := &errpkg.DBError{Op: "get_task", Err: errors.New("connection reset")}
	svc := NewTaskService(&failingStore{err: fault}, &fakeDispatcher{}, &fakeResolver{}, newTestLogger())

	_, _, err := svc.GetStatus(context.Background(), 1)
	var dbErr *errpkg.DBError
	assert.True(t, errors.As(err, &dbErr))
}

func TestGetStatusByParent(t *testing.T) {
	svc, _ := newTestService(t, &fakeDispatcher{}, &fakeResolver{})
	ctx := context.Background()

	_, found, err := svc.GetStatusByParent(ctx, 5)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = svc.CreateTask(ctx, "import", nil, int64Ptr(5))
	require.NoError(t, err)
	newest, err := svc.CreateTask(ctx, "import", nil, int64Ptr(5))
	require.NoError(t, err)

	ok, err := svc.UpdateStatus(ctx, newest, domain.TaskStatusInProgress)
	require.NoError(t, err)
	require.True(t, ok)

	status, found, err := svc.GetStatusByParent(ctx, 5)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domain.TaskStatusInProgress, status)
}

func TestUpdateStatus(t *testing.T) {
	svc, _ := newTestService(t, &fakeDispatcher{}, &fakeResolver{})
	ctx := context.Background()

	id, err := svc.CreateTask(ctx, "export", nil, nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		status domain.TaskStatus
		want   bool
		stored domain.TaskStatus
	}{
		{name: "illegal status", status: "archived", want: false, stored: domain.TaskStatusPending},
		{name: "forward", status: domain.TaskStatusInProgress, want: true, stored: domain.TaskStatusInProgress},
		{name: "same status", status: domain.TaskStatusInProgress, want: true, stored: domain.TaskStatusInProgress},
		{name: "backwards", status: domain.TaskStatusPending, want: false, stored: domain.TaskStatusInProgress},
		{name: "terminal", status: domain.TaskStatusCompleted, want: true, stored: domain.TaskStatusCompleted},
		{name: "after terminal", status: domain.TaskStatusFailed, want: false, stored: domain.TaskStatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := svc.UpdateStatus(ctx, id, tt.status)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)

			status, _, err := svc.GetStatus(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, tt.stored, status)
		})
	}
}

func TestUpdateStatus_UnknownTask(t *testing.T) {
	svc, _ := newTestService(t, &fakeDispatcher{}, &fakeResolver{})

	ok, err := svc.UpdateStatus(context.Background(), 404, domain.TaskStatusCompleted)
	assert.False(t, ok)
	assert.ErrorIs(t, err, errpkg.ErrTaskNotFound)
}

func TestGetRemoteStatusByParent_UsesStoredParams(t *testing.T) {
	r := &fakeResolver{status: "success", found: true}
	svc, _ := newTestService(t, &fakeDispatcher{}, r)
	ctx := context.Background()

	parent, err := svc.CreateTask(ctx, "export", domain.Params{
		"params": map[string]any{
			"http_method":          "https",
			"http_port":            8443,
			"no_check_certificate": "1",
			"no_proxy":             true,
		},
	}, nil)
	require.NoError(t, err)

	status, found, err := svc.GetRemoteStatusByParent(ctx, parent, "host.example", "centreon")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domain.TaskStatus("success"), status)

	assert.Equal(t, "https://host.example:8443/centreon"+remote.StatusPath, r.url)
	assert.True(t, r.params.NoCheckCertificate)
	assert.True(t, r.params.NoProxy)
}

func TestGetRemoteStatusByParent_UnknownParent(t *testing.T) {
	r := &fakeResolver{}
	svc, _ := newTestService(t, &fakeDispatcher{}, r)

	_, found, err := svc.GetRemoteStatusByParent(context.Background(), 77, "host.example", "centreon")
	assert.False(t, found)
	assert.ErrorIs(t, err, errpkg.ErrRemoteResolution)
	assert.ErrorIs(t, err, errpkg.ErrTaskNotFound)

	var re *errpkg.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, errpkg.StageParams, re.Stage)
	assert.Zero(t, r.calls.Load())
}

func TestGetRemoteStatusByParent_ForeignResolverError(t *testing.T) {
	r := &fakeResolver{err: errors.New("boom")}
	svc, _ := newTestService(t, &fakeDispatcher{}, r)
	ctx := context.Background()

	parent, err := svc.CreateTask(ctx, "export", nil, nil)
	require.NoError(t, err)

	_, _, err = svc.GetRemoteStatusByParent(ctx, parent, "host.example", "")
	var re *errpkg.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, errpkg.StageTransport, re.Stage)
}

func TestGetRemoteStatusByParent_CoalescesConcurrentLookups(t *testing.T) {
	r := &fakeResolver{status: domain.TaskStatusCompleted, found: true, release: make(chan struct{})}
	svc, _ := newTestService(t, &fakeDispatcher{}, r)
	ctx := context.Background()

	parent, err := svc.CreateTask(ctx, "export", nil, nil)
	require.NoError(t, err)

	var started, done sync.WaitGroup
	for i := 0; i < 5; i++ {
		started.Add(1)
		done.Add(1)
		go func() {
			defer done.Done()
			started.Done()
			status, found, err := svc.GetRemoteStatusByParent(ctx, parent, "host.example", "centreon")
			assert.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, domain.TaskStatusCompleted, status)
		}()
	}

	started.Wait()
	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), r.calls.Load())

	close(r.release)
	done.Wait()

	assert.Equal(t, int32(1), r.calls.Load())
}

func TestGetRemoteStatusByParent_CanceledCallerDoesNotFailOthers(t *testing.T) {
	r := &fakeResolver{status: domain.TaskStatusCompleted, found: true, release: make(chan struct{})}
	svc, _ := newTestService(t, &fakeDispatcher{}, r)

	parent, err := svc.CreateTask(context.Background(), "export", nil, nil)
	require.NoError(t, err)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := svc.GetRemoteStatusByParent(firstCtx, parent, "host.example", "centreon")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		status domain.TaskStatus
		found  bool
		err    error
	}
	second := make(chan result, 1)
	go func() {
		status, found, err := svc.GetRemoteStatusByParent(context.Background(), parent, "host.example", "centreon")
		second <- result{status, found, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, err, errpkg.ErrRemoteResolution)
	case <-time.After(time.Second):
		t.Fatal("canceled caller did not return")
	}

	close(r.release)
	select {
	case res := <-second:
		require.NoError(t, res.err)
		assert.True(t, res.found)
		assert.Equal(t, domain.TaskStatusCompleted, res.status)
	case <-time.After(time.Second):
		t.Fatal("second caller did not return")
	}
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestGetRemoteStatusByParent_PeerRoundTrip(t *testing.T) {
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/centreon/api/external.php"))
		_, _ = io.WriteString(w, `{"status":"success"}`)
	}))
	defer peer.Close()

	client := remote.NewStatusClient(remote.Options{Timeout: time.Second}, newTestLogger())
	svc, _ := newTestService(t, &fakeDispatcher{}, client)
	ctx := context.Background()

	parent, err := svc.CreateTask(ctx, "export", domain.Params{"http_method": "https"}, nil)
	require.NoError(t, err)

	status, found, err := svc.GetRemoteStatusByParent(ctx, parent, peer.URL, "centreon")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, domain.TaskStatus("success"), status)

	unreachable := peer.URL
	peer.Close()

	status, _, err = svc.GetRemoteStatusByParent(ctx, parent, unreachable, "centreon")
	assert.ErrorIs(t, err, errpkg.ErrRemoteResolution)
	assert.Empty(t, status)
	assert.NotContains(t, string(status), "error")
}
