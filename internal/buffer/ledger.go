package buffer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const runTTL = 24 * time.Hour

// ErrRunNotFound indicates the requested run id does not exist.
var ErrRunNotFound = errors.New("buffer: run not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Run records one processor invocation.
type Run struct {
	RunID          string  `dynamodbav:"runId" json:"run_id"`
	InvocationID   string  `dynamodbav:"invocationId,omitempty" json:"invocation_id,omitempty"`
	ConversationID string  `dynamodbav:"conversationId" json:"conversation_id"`
	BufferID       string  `dynamodbav:"bufferId,omitempty" json:"buffer_id,omitempty"`
	Outcome        Outcome `dynamodbav:"outcome" json:"outcome"`
	ErrorMessage   string  `dynamodbav:"errorMessage,omitempty" json:"error,omitempty"`
	StartedAt      string  `dynamodbav:"startedAt" json:"started_at"`
	FinishedAt     string  `dynamodbav:"finishedAt,omitempty" json:"finished_at,omitempty"`
	ExpiresAt      int64   `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// RunLedger stores runs in DynamoDB with a TTL attribute.
type RunLedger struct {
	client    dynamoAPI
	tableName string
	now       func() time.Time
}

var _ RunRecorder = (*RunLedger)(nil)

// NewRunLedger builds a ledger backed by the provided DynamoDB client.
func NewRunLedger(client dynamoAPI, tableName string) *RunLedger {
	if client == nil {
		panic("buffer: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("buffer: table name cannot be empty")
	}
	return &RunLedger{client: client, tableName: tableName, now: time.Now}
}

// Record inserts a run. Run ids are never overwritten.
func (l *RunLedger) Record(ctx context.Context, run Run) error {
	if run.RunID == "" {
		return errors.New("buffer: run id required")
	}
	if run.ExpiresAt == 0 {
		run.ExpiresAt = l.now().Add(runTTL).Unix()
	}
	item, err := attributevalue.MarshalMap(run)
	if err != nil {
		return fmt.Errorf("buffer: failed to marshal run: %w", err)
	}
	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(runId)"),
	})
	if err != nil {
		return fmt.Errorf("buffer: failed to persist run: %w", err)
	}
	return nil
}

// Get fetches a run by id.
func (l *RunLedger) Get(ctx context.Context, runID string) (*Run, error) {
	if runID == "" {
		return nil, errors.New("buffer: run id required")
	}
	out, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(l.tableName),
		Key: map[string]types.AttributeValue{
			"runId": &types.AttributeValueMemberS{Value: runID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("buffer: failed to fetch run: %w", err)
	}
	if out.Item == nil {
		return nil, ErrRunNotFound
	}
	var run Run
	if err := attributevalue.UnmarshalMap(out.Item, &run); err != nil {
		return nil, fmt.Errorf("buffer: failed to decode run: %w", err)
	}
	return &run, nil
}
