package ingestion

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	"github.com/jonathan/video-refinery/internal/types"
)

// sniffLen is how many leading bytes are buffered for content detection.
const sniffLen = 3072

// rawKey is the storage key for a job's asset. It is stable per job so a
// redelivered transfer overwrites rather than duplicates.
func rawKey(jobID, ext string) string {
	return "raw/" + jobID + ext
}

// YtDlpTransfer streams a platform-hosted video through yt-dlp's stdout
// straight into a Sink without touching local disk.
type YtDlpTransfer struct {
	binary string
	args   []string
	sink   Sink
	logger *slog.Logger
}

// NewYtDlpTransfer creates a transfer invoking the yt-dlp binary at path.
func NewYtDlpTransfer(path string, sink Sink, logger *slog.Logger) *YtDlpTransfer {
	if path == "" {
		path = "yt-dlp"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &YtDlpTransfer{
		binary: path,
		args: []string{
			"--extractor-args", "youtube:player_client=android",
			"-f", "b",
			"-o", "-",
			"--no-warnings",
		},
		sink:   sink,
		logger: logger,
	}
}

// Transfer implements Transferer.
func (t *YtDlpTransfer) Transfer(ctx context.Context, ref types.SourceRef, jobID string) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.binary, append(append([]string{}, t.args...), ref.URL)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", &types.TransferError{Op: "yt-dlp pipe", Err: err}
	}
	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return "", &types.TransferError{Op: "yt-dlp start", Err: err}
	}

	proc := &processReader{r: stdout, cmd: cmd, stderr: stderr}
	key := rawKey(jobID, ".mp4")
	t.logger.Info("starting stream", "job_id", jobID, "source", ref.URL, "key", key)

	uri, putErr := t.sink.Put(ctx, key, "video/mp4", proc)
	if putErr != nil {
		cancel()
		_ = proc.wait()
		return "", &types.TransferError{Op: "yt-dlp stream", Err: putErr}
	}
	if err := proc.wait(); err != nil {
		return "", &types.TransferError{Op: "yt-dlp stream", Err: err}
	}

	t.logger.Info("stream complete", "job_id", jobID, "uri", uri)
	return uri, nil
}

// processReader surfaces a non-zero exit as a read error at EOF so the sink
// never commits the output of a failed download.
type processReader struct {
	r      io.Reader
	cmd    *exec.Cmd
	stderr *tailBuffer

	once    sync.Once
	waitErr error
}

func (p *processReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if errors.Is(err, io.EOF) {
		if werr := p.wait(); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func (p *processReader) wait() error {
	p.once.Do(func() {
		if err := p.cmd.Wait(); err != nil {
			p.waitErr = fmt.Errorf("yt-dlp failed: %w: %s", err, strings.TrimSpace(p.stderr.String()))
		}
	})
	return p.waitErr
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// DirectTransfer streams a plain HTTP(S) video file into a Sink, rejecting
// payloads whose leading bytes are not a video container.
type DirectTransfer struct {
	client *http.Client
	sink   Sink
	logger *slog.Logger
}

// NewDirectTransfer creates a transfer; a nil client uses http.DefaultClient.
func NewDirectTransfer(client *http.Client, sink Sink, logger *slog.Logger) *DirectTransfer {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectTransfer{client: client, sink: sink, logger: logger}
}

// Transfer implements Transferer.
func (t *DirectTransfer) Transfer(ctx context.Context, ref types.SourceRef, jobID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return "", &types.ValidationError{Field: "sourceUrl", Message: "invalid source URL", Err: err}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", &types.TransferError{Op: "download", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", &types.ValidationError{Field: "sourceUrl", Message: "Video not found: " + ref.URL, Err: types.ErrSourceNotFound}
	case resp.StatusCode != http.StatusOK:
		return "", &types.TransferError{Op: "download", Err: fmt.Errorf("HTTP status %d", resp.StatusCode)}
	}

	br := bufio.NewReaderSize(resp.Body, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", &types.TransferError{Op: "download", Err: err}
	}

	mt := mimetype.Detect(head)
	if !strings.HasPrefix(mt.String(), "video/") {
		return "", &types.ValidationError{
			Field:   "sourceUrl",
			Message: fmt.Sprintf("unsupported content type %s", mt.String()),
		}
	}

	key := rawKey(jobID, mt.Extension())
	t.logger.Info("starting download", "job_id", jobID, "source", ref.URL, "mime", mt.String(), "key", key)

	uri, err := t.sink.Put(ctx, key, mt.String(), br)
	if err != nil {
		return "", &types.TransferError{Op: "upload", Err: err}
	}
	return uri, nil
}
