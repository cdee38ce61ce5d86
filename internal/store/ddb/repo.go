// Package ddb provides the DynamoDB meal repository used by the Lambda
// deployment.
//
// Table layout (single table, string keys PK/SK):
//   - meal item:  PK=SK=MEAL#<id>, GSI1PK=USER#<owner>, GSI1SK=<createdAt>#<id>
//   - key guard:  PK=SK=KEY#<input file key>, meal_id=<id>
//
// Indexes: "owner-created" (GSI1PK, GSI1SK) for day listing and
// "status-updated" (status, updated_at) for stale scans. Key guards carry
// neither attribute so they stay out of both indexes.
package ddb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/models"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/store"
)

// Index names.
const (
	IndexOwnerCreated = "owner-created"
	IndexStatusUpdate = "status-updated"
)

// API is the subset of the DynamoDB client the repository uses.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Repo wraps a DynamoDB client and table name for meal operations.
type Repo struct {
	DB    API
	Table string

	now func() time.Time
}

var _ store.Store = (*Repo)(nil)

// New returns a repository over table.
func New(db API, table string) *Repo {
	return &Repo{DB: db, Table: table, now: time.Now}
}

// item is the persisted meal shape.
type item struct {
	PK     string `dynamodbav:"PK"`
	SK     string `dynamodbav:"SK"`
	GSI1PK string `dynamodbav:"GSI1PK"`
	GSI1SK string `dynamodbav:"GSI1SK"`

	MealID       string            `dynamodbav:"meal_id"`
	OwnerID      string            `dynamodbav:"owner_id"`
	InputFileKey string            `dynamodbav:"input_file_key"`
	InputType    models.InputType  `dynamodbav:"input_type"`
	Status       models.Status     `dynamodbav:"status"`
	Name         string            `dynamodbav:"name"`
	Icon         string            `dynamodbav:"icon"`
	Foods        []models.FoodItem `dynamodbav:"foods"`
	CreatedAt    string            `dynamodbav:"created_at"` // models.TimeLayout
	UpdatedAt    string            `dynamodbav:"updated_at"`
}

// keyGuard reserves an input file key; its existence makes the key unique.
type keyGuard struct {
	PK     string `dynamodbav:"PK"`
	SK     string `dynamodbav:"SK"`
	MealID string `dynamodbav:"meal_id"`
}

// MealKey returns the primary key value of a meal item.
func MealKey(id string) string { return "MEAL#" + id }

// GuardKey returns the primary key value of an input key guard.
func GuardKey(inputKey string) string { return "KEY#" + inputKey }

// OwnerKey returns the owner-created partition value.
func OwnerKey(ownerID string) string { return "USER#" + ownerID }

func primaryKey(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: pk},
	}
}

func toItem(m models.MealRecord) item {
	created := models.FormatTime(m.CreatedAt)
	updated := created
	if !m.UpdatedAt.IsZero() {
		updated = models.FormatTime(m.UpdatedAt)
	}
	foods := m.Foods
	if foods == nil {
		foods = []models.FoodItem{}
	}
	return item{
		PK:           MealKey(m.ID),
		SK:           MealKey(m.ID),
		GSI1PK:       OwnerKey(m.OwnerID),
		GSI1SK:       created + "#" + m.ID,
		MealID:       m.ID,
		OwnerID:      m.OwnerID,
		InputFileKey: m.InputFileKey,
		InputType:    m.InputType,
		Status:       m.Status,
		Name:         m.Name,
		Icon:         m.Icon,
		Foods:        foods,
		CreatedAt:    created,
		UpdatedAt:    updated,
	}
}

func (it item) toModel() (models.MealRecord, error) {
	if !it.Status.Valid() {
		return models.MealRecord{}, fmt.Errorf("meal %s has unknown status %q", it.MealID, it.Status)
	}
	created, err := models.ParseTime(it.CreatedAt)
	if err != nil {
		return models.MealRecord{}, fmt.Errorf("meal %s created_at: %w", it.MealID, err)
	}
	updated, err := models.ParseTime(it.UpdatedAt)
	if err != nil {
		updated = created
	}
	foods := it.Foods
	if foods == nil {
		foods = []models.FoodItem{}
	}
	return models.MealRecord{
		ID:           it.MealID,
		OwnerID:      it.OwnerID,
		InputFileKey: it.InputFileKey,
		InputType:    it.InputType,
		Status:       it.Status,
		Name:         it.Name,
		Icon:         it.Icon,
		Foods:        foods,
		CreatedAt:    created,
		UpdatedAt:    updated,
	}, nil
}

// Create writes the meal and its key guard in one transaction so neither
// the id nor the input key can be claimed twice.
func (r *Repo) Create(ctx context.Context, m models.MealRecord) (string, error) {
	mealItem, err := attributevalue.MarshalMap(toItem(m))
	if err != nil {
		return "", err
	}
	guardItem, err := attributevalue.MarshalMap(keyGuard{
		PK: GuardKey(m.InputFileKey), SK: GuardKey(m.InputFileKey), MealID: m.ID,
	})
	if err != nil {
		return "", err
	}
	notExists := aws.String("attribute_not_exists(PK)")
	_, err = r.DB.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{TableName: &r.Table, Item: mealItem, ConditionExpression: notExists}},
			{Put: &types.Put{TableName: &r.Table, Item: guardItem, ConditionExpression: notExists}},
		},
	})
	if err != nil {
		if isConditionCancel(err) {
			return "", store.ErrDuplicateKey
		}
		return "", fmt.Errorf("put meal %s: %w", m.ID, err)
	}
	return m.ID, nil
}

// GetByID returns the meal if it belongs to ownerID.
func (r *Repo) GetByID(ctx context.Context, id, ownerID string) (models.MealRecord, error) {
	m, err := r.getMeal(ctx, id)
	if err != nil {
		return models.MealRecord{}, err
	}
	if m.OwnerID != ownerID {
		return models.MealRecord{}, store.ErrNotFound
	}
	return m, nil
}

func (r *Repo) getMeal(ctx context.Context, id string) (models.MealRecord, error) {
	out, err := r.DB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &r.Table,
		Key:            primaryKey(MealKey(id)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return models.MealRecord{}, fmt.Errorf("get meal %s: %w", id, err)
	}
	if len(out.Item) == 0 {
		return models.MealRecord{}, store.ErrNotFound
	}
	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return models.MealRecord{}, err
	}
	return it.toModel()
}

// FindByInputKey follows the key guard to the meal. Both reads are strongly
// consistent, so a record created before its upload is always found.
func (r *Repo) FindByInputKey(ctx context.Context, key string) (models.MealRecord, error) {
	out, err := r.DB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &r.Table,
		Key:            primaryKey(GuardKey(key)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return models.MealRecord{}, fmt.Errorf("get key guard %s: %w", key, err)
	}
	if len(out.Item) == 0 {
		return models.MealRecord{}, store.ErrNotFound
	}
	var g keyGuard
	if err := attributevalue.UnmarshalMap(out.Item, &g); err != nil {
		return models.MealRecord{}, err
	}
	return r.getMeal(ctx, g.MealID)
}

// ListByOwnerAndDay queries the owner-created index over the day window and
// keeps only success meals.
func (r *Repo) ListByOwnerAndDay(ctx context.Context, ownerID string, day time.Time) ([]models.MealRecord, error) {
	from, to := store.DayWindow(day)
	// "~" sorts after "#", so the upper bound includes every id at `to`.
	keyCond := expression.Key("GSI1PK").Equal(expression.Value(OwnerKey(ownerID))).
		And(expression.Key("GSI1SK").Between(expression.Value(models.FormatTime(from)), expression.Value(models.FormatTime(to)+"~")))
	filter := expression.Name("status").Equal(expression.Value(string(models.StatusSuccess)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithFilter(filter).Build()
	if err != nil {
		return nil, err
	}
	return r.query(ctx, &dynamodb.QueryInput{
		TableName:                 &r.Table,
		IndexName:                 aws.String(IndexOwnerCreated),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(true),
	}, 0)
}

// ListStale queries the status-updated index for transitions older than olderThan.
func (r *Repo) ListStale(ctx context.Context, status models.Status, olderThan time.Time, limit int) ([]models.MealRecord, error) {
	keyCond := expression.Key("status").Equal(expression.Value(string(status))).
		And(expression.Key("updated_at").LessThan(expression.Value(models.FormatTime(olderThan))))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, err
	}
	return r.query(ctx, &dynamodb.QueryInput{
		TableName:                 &r.Table,
		IndexName:                 aws.String(IndexStatusUpdate),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, limit)
}

// query follows LastEvaluatedKey until exhausted or limit items are read.
func (r *Repo) query(ctx context.Context, in *dynamodb.QueryInput, limit int) ([]models.MealRecord, error) {
	out := []models.MealRecord{}
	for {
		page, err := r.DB.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", aws.ToString(in.IndexName), err)
		}
		var items []item
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, err
		}
		for _, it := range items {
			m, err := it.toModel()
			if err != nil {
				return nil, err
			}
			out = append(out, m)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		in.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

// CompareAndSetStatus issues a conditional UpdateItem. A failed condition
// (including a missing item or an illegal transition) reports false without
// an error.
func (r *Repo) CompareAndSetStatus(ctx context.Context, id string, expected []models.Status, next models.Status, out *store.Outcome) (bool, error) {
	if !store.Legal(expected, next, out) {
		return false, nil
	}
	others := make([]expression.OperandBuilder, 0, len(expected)-1)
	for _, s := range expected[1:] {
		others = append(others, expression.Value(string(s)))
	}
	cond := expression.Name("status").In(expression.Value(string(expected[0])), others...)

	update := expression.Set(expression.Name("status"), expression.Value(string(next))).
		Set(expression.Name("updated_at"), expression.Value(models.FormatTime(r.clock())))
	if out != nil {
		foods := out.Foods
		if foods == nil {
			foods = []models.FoodItem{}
		}
		update = update.
			Set(expression.Name("name"), expression.Value(out.Name)).
			Set(expression.Name("icon"), expression.Value(out.Icon)).
			Set(expression.Name("foods"), expression.Value(foods))
	}

	expr, err := expression.NewBuilder().WithCondition(cond).WithUpdate(update).Build()
	if err != nil {
		return false, err
	}
	_, err = r.DB.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &r.Table,
		Key:                       primaryKey(MealKey(id)),
		ConditionExpression:       expr.Condition(),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, fmt.Errorf("update meal %s: %w", id, err)
	}
	return true, nil
}

func (r *Repo) clock() time.Time {
	if r.now == nil {
		return time.Now()
	}
	return r.now()
}

func isConditionCancel(err error) bool {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return false
	}
	for _, reason := range tce.CancellationReasons {
		if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}
