package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/chirag9899/citer/engine/domain"
	"github.com/chirag9899/citer/pkg/natsutil"
)

const (
	// Subject carries asynchronously published upload batches.
	Subject = "citer.ingest"
	// DLQSubject receives batches that kept failing.
	DLQSubject = "citer.ingest.dlq"
	// MaxRetries before a batch is dead-lettered.
	MaxRetries = 3

	retryHeader = "X-Retry-Count"
)

// dlqMessage is published to the DLQ when a batch exhausts its retries.
type dlqMessage struct {
	Batch   []byte `json:"batch"`
	Error   string `json:"error"`
	Retries int    `json:"retries"`
}

// StartConsumer subscribes to the ingest subject and runs published
// batches through the pipeline. Validation and duplicate-id failures are
// terminal (retrying cannot fix the payload); transport and embedding
// failures are re-published with a retry header until MaxRetries, then
// dead-lettered.
func (s *Service) StartConsumer(nc *nats.Conn) (*nats.Subscription, error) {
	return nc.Subscribe(Subject, func(msg *nats.Msg) {
		ctx := natsutil.ExtractContext(msg)

		chunks, err := domain.ParseChunks(msg.Data)
		if err != nil {
			s.logger.Error("ingest: rejected batch", "error", err)
			s.deadLetter(ctx, nc, msg, err, retries(msg))
			return
		}

		receipt, err := s.IngestBatch(ctx, chunks)
		if err == nil {
			s.logger.Info("ingest: async batch done", "added", receipt.Added, "skipped", len(receipt.SkippedIDs))
			return
		}

		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrDuplicateID) {
			s.logger.Error("ingest: rejected batch", "error", err)
			s.deadLetter(ctx, nc, msg, err, retries(msg))
			return
		}

		n := retries(msg) + 1
		s.logger.Error("ingest: batch failed", "error", err, "retry", n)
		if n >= MaxRetries {
			s.deadLetter(ctx, nc, msg, err, n)
			return
		}

		retry := nats.NewMsg(Subject)
		retry.Data = msg.Data
		retry.Header = nats.Header{}
		retry.Header.Set(retryHeader, fmt.Sprintf("%d", n))
		if err := nc.PublishMsg(retry); err != nil {
			s.logger.Error("ingest: retry publish failed", "error", err)
		}
	})
}

func (s *Service) deadLetter(ctx context.Context, nc *nats.Conn, msg *nats.Msg, cause error, retries int) {
	dlq := dlqMessage{Batch: msg.Data, Error: cause.Error(), Retries: retries}
	if err := natsutil.Publish(ctx, nc, DLQSubject, dlq); err != nil {
		s.logger.Error("ingest: DLQ publish failed", "error", err)
	}
}

func retries(msg *nats.Msg) int {
	if msg.Header == nil {
		return 0
	}
	n := 0
	fmt.Sscanf(msg.Header.Get(retryHeader), "%d", &n)
	return n
}
