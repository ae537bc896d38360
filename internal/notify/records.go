package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/uykb/hypejk/internal/domain"
)

// TransitionsTopic names both the pub/sub channel and the stream that
// BusSender writes to.
const TransitionsTopic = "transitions"

// BusSender publishes each event as JSON on a SignalBus channel and appends
// it to a stream of the same name for late consumers.
type BusSender struct {
	bus   domain.SignalBus
	topic string
}

// NewBusSender creates a BusSender writing to TransitionsTopic.
func NewBusSender(bus domain.SignalBus) *BusSender {
	return &BusSender{bus: bus, topic: TransitionsTopic}
}

// Send publishes ev and appends it to the stream. Both writes are attempted.
func (b *BusSender) Send(ctx context.Context, ev domain.TransitionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("bus: marshal event: %w", err)
	}

	var errs []error
	if err := b.bus.Publish(ctx, b.topic, payload); err != nil {
		errs = append(errs, fmt.Errorf("bus: publish: %w", err))
	}
	if err := b.bus.StreamAppend(ctx, b.topic, payload); err != nil {
		errs = append(errs, fmt.Errorf("bus: stream append: %w", err))
	}
	return errors.Join(errs...)
}

// Name returns the sender identifier.
func (b *BusSender) Name() string {
	return "redis"
}

// JournalSender records events in a TransitionStore.
type JournalSender struct {
	store domain.TransitionStore
}

// NewJournalSender creates a JournalSender backed by store.
func NewJournalSender(store domain.TransitionStore) *JournalSender {
	return &JournalSender{store: store}
}

// Send inserts ev into the journal.
func (j *JournalSender) Send(ctx context.Context, ev domain.TransitionEvent) error {
	if err := j.store.Insert(ctx, ev); err != nil {
		return fmt.Errorf("journal: insert: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (j *JournalSender) Name() string {
	return "postgres"
}

// ArchiveSender writes each event as a JSON object to blob storage.
type ArchiveSender struct {
	blob   domain.BlobWriter
	prefix string
}

// NewArchiveSender creates an ArchiveSender. An empty prefix defaults to
// "transitions".
func NewArchiveSender(blob domain.BlobWriter, prefix string) *ArchiveSender {
	if prefix == "" {
		prefix = TransitionsTopic
	}
	return &ArchiveSender{blob: blob, prefix: prefix}
}

// ArchiveKey returns the object key for ev:
// <prefix>/<account>/<yyyy>/<mm>/<dd>/<timestamp_ms>-<id>.json.
func ArchiveKey(prefix string, ev domain.TransitionEvent) string {
	t := ev.Time()
	return path.Join(
		prefix,
		ev.Account,
		t.Format("2006"),
		t.Format("01"),
		t.Format("02"),
		fmt.Sprintf("%d-%s.json", ev.TimestampMs, ev.ID),
	)
}

// Send uploads ev.
func (a *ArchiveSender) Send(ctx context.Context, ev domain.TransitionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("archive: marshal event: %w", err)
	}
	if err := a.blob.Put(ctx, ArchiveKey(a.prefix, ev), bytes.NewReader(payload), "application/json"); err != nil {
		return fmt.Errorf("archive: put: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (a *ArchiveSender) Name() string {
	return "s3"
}

// JSONLinesSender writes one JSON object per event to w. It is safe for
// concurrent use.
type JSONLinesSender struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLinesSender creates a JSONLinesSender writing to w.
func NewJSONLinesSender(w io.Writer) *JSONLinesSender {
	return &JSONLinesSender{enc: json.NewEncoder(w)}
}

// Send encodes ev as a single line.
func (s *JSONLinesSender) Send(_ context.Context, ev domain.TransitionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(ev); err != nil {
		return fmt.Errorf("jsonl: encode event: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (s *JSONLinesSender) Name() string {
	return "jsonl"
}
