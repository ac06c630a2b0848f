package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/veranemoloko/impex-tasks/internal/domain"
	errpkg "github.com/veranemoloko/impex-tasks/internal/errors"
	"github.com/veranemoloko/impex-tasks/internal/metrics"
)

// StatusPath is the peer endpoint answering parent status queries.
const StatusPath = "/api/external.php?object=centreon_task_service&action=getTaskStatusByParent"

const maxResponseBytes = 1 << 20

// BuildURL returns the status endpoint of a peer. A serverAddress that already carries a
// scheme is used verbatim; otherwise scheme and port come from the transfer params.
func BuildURL(serverAddress, basePath string, p domain.RemoteTransferParams) string {
	base := serverAddress
	if !strings.Contains(serverAddress, "://") {
		base = p.Scheme() + "://" + serverAddress
		if p.HTTPPort != "" {
			base += ":" + p.HTTPPort
		}
	}
	base = strings.TrimRight(base, "/")

	if folder := strings.Trim(basePath, "/"); folder != "" {
		base += "/" + folder
	}
	return base + StatusPath
}

type Options struct {
	Timeout       time.Duration
	Retries       uint
	RetryInterval time.Duration
}

type transportKey struct {
	skipTLS bool
	noProxy bool
}

// StatusClient queries peers for the status of a task by parent id.
type StatusClient struct {
	opts    Options
	clients map[transportKey]*http.Client
	logger  *slog.Logger
}

func NewStatusClient(opts Options, logger *slog.Logger) *StatusClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 200 * time.Millisecond
	}

	clients := make(map[transportKey]*http.Client, 4)
	for _, skipTLS := range []bool{false, true} {
		for _, noProxy := range []bool{false, true} {
			t := cleanhttp.DefaultPooledTransport()
			if skipTLS {
				t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
			}
			if noProxy {
				t.Proxy = nil
			}
			clients[transportKey{skipTLS: skipTLS, noProxy: noProxy}] = &http.Client{Transport: t}
		}
	}

	return &StatusClient{
		opts:    opts,
		clients: clients,
		logger:  logger,
	}
}

func (c *StatusClient) httpClient(p domain.RemoteTransferParams) *http.Client {
	return c.clients[transportKey{skipTLS: p.NoCheckCertificate, noProxy: p.NoProxy}]
}

type statusReply struct {
	Status *string `json:"status"`
}

// FetchStatus posts the parent id to url and returns the status the peer reports.
// found is false when the peer has no task for that parent. Errors are *errors.RemoteError.
func (c *StatusClient) FetchStatus(ctx context.Context, url string, parentID int64, p domain.RemoteTransferParams) (domain.TaskStatus, bool, error) {
	start := time.Now()
	defer func() { metrics.RemoteDuration.Observe(time.Since(start).Seconds()) }()

	body, err := json.Marshal(domain.ParentStatusRequest{ParentID: parentID})
	if err != nil {
		return "", false, c.fail(parentID, errpkg.StageRequest, 0, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	client := c.httpClient(p)
	attempt := 0

	op := func() (statusReply, error) {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return statusReply{}, backoff.Permanent(remoteErr(parentID, errpkg.StageRequest, 0, err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			c.logger.Debug("remote status request failed", "url", url, "attempt", attempt, "error", err)
			return statusReply{}, remoteErr(parentID, errpkg.StageTransport, 0, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
			rerr := remoteErr(parentID, errpkg.StageStatus, resp.StatusCode, fmt.Errorf("bad status: %s", resp.Status))
			if resp.StatusCode >= 500 {
				return statusReply{}, rerr
			}
			return statusReply{}, backoff.Permanent(rerr)
		}

		var reply statusReply
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&reply); err != nil {
			return statusReply{}, backoff.Permanent(remoteErr(parentID, errpkg.StageDecode, resp.StatusCode, err))
		}
		return reply, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.RetryInterval
	bo.MaxInterval = 10 * c.opts.RetryInterval

	reply, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(c.opts.Retries+1),
	)
	if err != nil {
		var re *errpkg.RemoteError
		if errors.As(err, &re) {
			metrics.RemoteRequests.WithLabelValues(string(re.Stage)).Inc()
			return "", false, re
		}
		return "", false, c.fail(parentID, errpkg.StageTransport, 0, err)
	}

	if reply.Status == nil || *reply.Status == "" {
		metrics.RemoteRequests.WithLabelValues("not_found").Inc()
		return "", false, nil
	}

	metrics.RemoteRequests.WithLabelValues("ok").Inc()
	return domain.TaskStatus(*reply.Status), true, nil
}

func (c *StatusClient) fail(parentID int64, stage errpkg.RemoteStage, code int, err error) error {
	metrics.RemoteRequests.WithLabelValues(string(stage)).Inc()
	return remoteErr(parentID, stage, code, err)
}

func remoteErr(parentID int64, stage errpkg.RemoteStage, code int, err error) *errpkg.RemoteError {
	return &errpkg.RemoteError{
		ParentID:   parentID,
		Stage:      stage,
		StatusCode: code,
		Err:        err,
	}
}
