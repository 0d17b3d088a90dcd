// Package archive stores closed conversation transcripts in S3.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/wolfman30/lead-pipeline/internal/conversation"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store writes transcripts under transcripts/v1/. With no bucket every call is a no-op.
type Store struct {
	bucket string
	client S3API
	logger *logging.Logger
	now    func() time.Time
}

var _ conversation.TranscriptArchiver = (*Store)(nil)

func NewStore(client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, client: client, logger: logger, now: time.Now}
}

// Enabled reports whether a bucket and client are configured.
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.client != nil
}

// ArchiveTranscript writes the scrubbed transcript and appends it to the monthly manifest.
// It returns the object key, or "" when archiving is disabled.
func (s *Store) ArchiveTranscript(ctx context.Context, conv conversation.Conversation, msgs []conversation.Message) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	now := s.now().UTC()
	record := newRecord(conv, msgs, now)

	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("archive: marshal transcript: %w", err)
	}
	key := fmt.Sprintf("transcripts/v1/%d/%02d/%02d/%s.json", now.Year(), now.Month(), now.Day(), conv.ID)
	if err := s.put(ctx, key, data, "application/json"); err != nil {
		return "", err
	}

	entry := ManifestEntry{
		ConversationID: conv.ID,
		Key:            key,
		Category:       record.Category,
		LeadScore:      record.LeadScore,
		CloseReason:    record.CloseReason,
		ArchivedAt:     now.Format(time.RFC3339),
		MessageCount:   record.MessageCount,
	}
	if err := s.appendManifest(ctx, entry, now); err != nil {
		s.logger.Warn("failed to append transcript manifest", "conversation_id", conv.ID, "error", err)
	}
	return key, nil
}

func newRecord(conv conversation.Conversation, msgs []conversation.Message, now time.Time) TranscriptRecord {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Message{Sender: string(m.SenderType), Content: m.Content, Timestamp: m.CreatedAt})
	}
	scrubMessages(out)
	return TranscriptRecord{
		Version:         recordVersion,
		ConversationID:  conv.ID,
		PhoneHash:       HashPhone(conv.WhatsAppNumber),
		Category:        conv.Category,
		Status:          string(conv.Status),
		CloseReason:     conv.CloseReason,
		LeadScore:       conv.LeadScore,
		LeadTemperature: conv.LeadTemperature,
		Reactivations:   conv.ReactivationCount,
		ArchivedAt:      now,
		MessageCount:    len(out),
		Messages:        out,
	}
}

// appendManifest rewrites the monthly JSONL manifest with one more line. S3 has no append.
func (s *Store) appendManifest(ctx context.Context, entry ManifestEntry, now time.Time) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}
	key := fmt.Sprintf("transcripts/v1/manifests/%d-%02d.jsonl", now.Year(), now.Month())

	existing, err := s.get(ctx, key)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.Write(existing)
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.Write(line)
	buf.WriteByte('\n')
	return s.put(ctx, key, buf.Bytes(), "application/x-ndjson")
}

func (s *Store) put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", key, err)
	}
	return nil
}

// get returns nil data when the object does not exist.
func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var missing *s3types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, nil
		}
		return nil, fmt.Errorf("archive: s3 get %s: %w", key, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", key, err)
	}
	return data, nil
}
