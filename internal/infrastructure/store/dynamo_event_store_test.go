package store

import (
	"context"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo answers head-version queries from a fixed value and records writes
type fakeDynamo struct {
	head        int
	transactErr error
	putErr      error

	transacts []*dynamodb.TransactWriteItemsInput
	puts      []*dynamodb.PutItemInput
}

func (f *fakeDynamo) Query(_ context.Context, _ *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if f.head < 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	item := map[string]types.AttributeValue{
		"version": &types.AttributeValueMemberN{Value: strconv.Itoa(f.head)},
	}
	return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.transacts = append(f.transacts, in)
	return &dynamodb.TransactWriteItemsOutput{}, f.transactErr
}

func (f *fakeDynamo) GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	return &dynamodb.PutItemOutput{}, f.putErr
}

func TestDynamoEventStore_AppendWritesOneTransaction(t *testing.T) {
	client := &fakeDynamo{head: -1}
	es := NewDynamoEventStore(client, "events")

	err := es.Append(context.Background(), "a", -1, makeEvents("a", 0, 3))
	require.NoError(t, err)

	require.Len(t, client.transacts, 1)
	items := client.transacts[0].TransactItems
	require.Len(t, items, 3)
	for _, item := range items {
		require.NotNil(t, item.Put)
		assert.Equal(t, "events", aws.ToString(item.Put.TableName))
		assert.Contains(t, aws.ToString(item.Put.ConditionExpression), "attribute_not_exists")
	}
}

func TestDynamoEventStore_AppendHeadMismatch(t *testing.T) {
	client := &fakeDynamo{head: 4}
	es := NewDynamoEventStore(client, "events")

	err := es.Append(context.Background(), "a", 2, makeEvents("a", 3, 1))
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.Empty(t, client.transacts)
}

func canceledBy(codes ...string) error {
	reasons := make([]types.CancellationReason, 0, len(codes))
	for _, code := range codes {
		reasons = append(reasons, types.CancellationReason{Code: aws.String(code)})
	}
	return &types.TransactionCanceledException{
		Message:             aws.String("Transaction cancelled"),
		CancellationReasons: reasons,
	}
}

func TestDynamoEventStore_AppendCanceledTransaction(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{"version already stored", canceledBy("None", "ConditionalCheckFailed"), true},
		{"throttled", canceledBy("ThrottlingError", "None"), false},
		{"conflicting transaction", canceledBy("TransactionConflict"), false},
		{"no reasons", canceledBy(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeDynamo{head: -1, transactErr: tt.err}
			es := NewDynamoEventStore(client, "events")

			err := es.Append(context.Background(), "a", -1, makeEvents("a", 0, 2))
			require.Error(t, err)
			if tt.conflict {
				assert.ErrorIs(t, err, ErrConcurrencyConflict)
				return
			}
			assert.NotErrorIs(t, err, ErrConcurrencyConflict)
			var canceled *types.TransactionCanceledException
			assert.ErrorAs(t, err, &canceled)
		})
	}
}

func TestDynamoSnapshotStore_StaleWriteIsIgnored(t *testing.T) {
	client := &fakeDynamo{
		putErr: &types.ConditionalCheckFailedException{Message: aws.String("newer snapshot exists")},
	}
	s := NewDynamoSnapshotStore(client, "snapshots")

	err := s.Write(context.Background(), &Snapshot{AggregateID: "a", Version: 3, State: []byte(`{}`)})
	require.NoError(t, err)
	require.Len(t, client.puts, 1)
	assert.Equal(t, "snapshots", aws.ToString(client.puts[0].TableName))
}

func TestDynamoSnapshotStore_ReadMissing(t *testing.T) {
	s := NewDynamoSnapshotStore(&fakeDynamo{}, "snapshots")

	snap, err := s.ReadLatest(context.Background(), "a")
	require.NoError(t, err)
	assert.Nil(t, snap)
}
